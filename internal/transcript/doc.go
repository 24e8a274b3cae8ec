// Package transcript defines the speaker segment model and implements
// lexical correction, speaker-overlap reconciliation, and sentence
// segmentation for recognized speech.
package transcript
