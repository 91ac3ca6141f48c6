package token

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used by the GPT-4 and GPT-3.5 families.
const DefaultEncoding = "cl100k_base"

// TiktokenEstimator counts real BPE tokens. The encoder is loaded lazily on
// first use; until then, or if loading fails, it falls back to the heuristic.
type TiktokenEstimator struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewTiktokenEstimator returns an estimator for the named encoding.
func NewTiktokenEstimator(encoding string) *TiktokenEstimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenEstimator{encoding: encoding}
}

// Load forces the encoder to load and reports any error. Calling it at
// startup surfaces a missing BPE file before the first request.
func (e *TiktokenEstimator) Load() error {
	e.once.Do(func() {
		e.enc, e.err = tiktoken.GetEncoding(e.encoding)
		if e.err != nil {
			e.err = fmt.Errorf("load tiktoken encoding %s: %w", e.encoding, e.err)
		}
	})
	return e.err
}

// Estimate returns the BPE token count, never less than one.
func (e *TiktokenEstimator) Estimate(text string) int {
	if err := e.Load(); err != nil {
		return HeuristicEstimator{}.Estimate(text)
	}
	// "all" lets special tokens such as <|endoftext|> count instead of panicking
	n := len(e.enc.Encode(text, []string{"all"}, nil))
	if n < 1 {
		return 1
	}
	return n
}
