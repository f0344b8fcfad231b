// Package segment splits document text into bounded chunks for translation.
// Paragraphs are kept together where they fit; larger paragraphs are broken
// on sentence, then clause, then word boundaries. Every split happens at
// whitespace, so joining the chunks reproduces the input up to whitespace.
package segment
