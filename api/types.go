package api

import (
	"fmt"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int    // e.g. 200
	Status       string // e.g. "200 OK"
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the subtok server logs for details"
	}
}

// TrainRequest describes a request sent by [Client.Train].
type TrainRequest struct {
	// Name is the checkpoint to create. An existing checkpoint with the
	// same name is overwritten.
	Name string `json:"name"`

	// Words is the training corpus, one word per element, repeats counted.
	Words []string `json:"words,omitempty"`

	// CorpusFile names a whitespace-delimited word file on the server,
	// ingested after Words.
	CorpusFile string `json:"corpus_file,omitempty"`

	// Options holds train-time parameters, any subset of [TrainOptions]
	// keyed by its field tags.
	Options map[string]any `json:"options,omitempty"`

	// Stream, when false, collapses the response to the final update.
	Stream *bool `json:"stream,omitempty"`
}

// TrainOptions are the tunable parameters of a training run.
type TrainOptions struct {
	// VocabSize stops merging once the indexed vocabulary would reach
	// this many symbols. Zero merges until no pair repeats.
	VocabSize int `json:"vocab_size" mapstructure:"vocab_size"`

	// MinCount drops words seen fewer than this many times before
	// training. Values below two keep every word.
	MinCount int `json:"min_count" mapstructure:"min_count"`

	// Parallel is the worker count for pair counting. Zero lets the
	// server choose.
	Parallel int `json:"parallel" mapstructure:"parallel"`
}

// TrainProgress is streamed by the server once per training step.
type TrainProgress struct {
	Status string `json:"status"`

	// Job identifies the training run across updates.
	Job string `json:"job,omitempty"`

	// Pair is the flattened form of the most recent merge.
	Pair string `json:"pair,omitempty"`

	// Merges counts completed merges; Total is the planned number when a
	// vocabulary size target was given, else zero.
	Merges int `json:"merges,omitempty"`
	Total  int `json:"total,omitempty"`

	VocabSize int `json:"vocab_size,omitempty"`
}

// TokenizeRequest describes a request sent by [Client.Tokenize].
type TokenizeRequest struct {
	// Name is the checkpoint to encode with.
	Name string `json:"name"`

	// Lines are encoded independently, one row of ids each.
	Lines []string `json:"lines"`

	// Window is the exact width of every returned row. Shorter lines are
	// padded, longer ones truncated. Defaults to the server's window.
	Window int `json:"window,omitempty"`

	// Segmented marks Lines as already split into subword symbols.
	Segmented bool `json:"segmented,omitempty"`
}

type TokenizeResponse struct {
	Ids [][]int `json:"ids"`
}

// DetokenizeRequest describes a request sent by [Client.Detokenize].
type DetokenizeRequest struct {
	Name string  `json:"name"`
	Ids  [][]int `json:"ids"`
}

type DetokenizeResponse struct {
	Symbols [][]string `json:"symbols"`
}

// SegmentRequest describes a request sent by [Client.Segment].
type SegmentRequest struct {
	Name string `json:"name"`
	Word string `json:"word"`
}

type SegmentResponse struct {
	Symbols []string `json:"symbols"`
}

// ListResponse is the response from [Client.List].
type ListResponse struct {
	Checkpoints []CheckpointResponse `json:"checkpoints"`
}

// CheckpointResponse is a single checkpoint description in [ListResponse].
type CheckpointResponse struct {
	Name       string    `json:"name"`
	VocabSize  int       `json:"vocab_size"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ShowRequest describes a request sent by [Client.Show].
type ShowRequest struct {
	Name string `json:"name"`
}

// ShowResponse is the response from [Client.Show].
type ShowResponse struct {
	Name   string `json:"name"`
	Marker string `json:"marker"`

	// VocabSize counts indexed symbols, reserved markers included.
	VocabSize int `json:"vocab_size"`

	// Words counts distinct corpus entries retained by the checkpoint.
	Words int `json:"words"`

	// Merges holds the flattened forms of the most recent merges.
	Merges []string `json:"merges,omitempty"`

	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// DeleteRequest describes a request sent by [Client.Delete].
type DeleteRequest struct {
	Name string `json:"name"`
}
