// Package normalisers turns uploaded binary documents into plain text.
// Each subpackage handles one format and implements driven.TextExtractor.
package normalisers
