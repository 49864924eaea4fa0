package search

// EnglishStopwords are common words that carry no signal when comparing
// short issue titles and descriptions.
var EnglishStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "can", "cannot",
	"do", "does", "for", "from", "has", "have", "i", "in", "is", "it", "its",
	"my", "no", "not", "of", "on", "or", "so", "that", "the", "this", "to",
	"was", "when", "with", "you",
}
