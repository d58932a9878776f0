// Package demux implements the output demultiplexer (§4.5): classifying a
// chunk of child output bytes into progress ticks versus unexpected output,
// and forwarding the classification to the logger.
package demux

import (
	"github.com/ricesearch/riceexec/internal/contract"
)

// Demux counts progress-symbol occurrences in a chunk and reports anything
// else as unexpected output.
type Demux struct {
	progressSymbol rune
	log            contract.Logger
}

// New builds a Demux reporting to log, counting occurrences of symbol.
func New(symbol rune, log contract.Logger) *Demux {
	return &Demux{progressSymbol: symbol, log: log}
}

// Handle classifies one chunk of output from child index/pid on stream kind,
// advances the progress counter by the number of progress-symbol code
// points found, and reports the entire chunk as unexpected output if any
// non-symbol code point is present. Stderr is opaque: any stderr chunk is
// always unexpected output, regardless of its content, and never advances
// the progress counter.
func (d *Demux) Handle(index int, pid *int, kind contract.StreamKind, chunk []byte) {
	p := 0
	if pid != nil {
		p = *pid
	}

	if kind == contract.StreamStderr {
		d.log.LogUnexpectedChildProcessOutput(index, p, kind, chunk, d.progressSymbol)
		return
	}

	c := 0
	length := 0
	for _, r := range string(chunk) {
		length++
		if r == d.progressSymbol {
			c++
		}
	}
	if c != length {
		d.log.LogUnexpectedChildProcessOutput(index, p, kind, chunk, d.progressSymbol)
	}

	if c > 0 {
		d.log.LogAdvance(c)
	}
}
