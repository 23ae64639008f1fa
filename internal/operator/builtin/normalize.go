package builtin

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"flowbridge/internal/config"
	"flowbridge/internal/flow"
	"flowbridge/internal/operator"
)

// Normalize cleans string arguments: it scrubs mis-decoded and real
// non-breaking spaces and trims. Optionally it strips diacritics
// (NFD, drop Mn, NFC) and lower-cases. Other values pass through.
type Normalize struct {
	operator.Base

	marks transform.Transformer
	lower bool
	vals  []any
}

var nbspReplacer = strings.NewReplacer("\u00c2\u00a0", " ", "\u00a0", " ")

func (n *Normalize) Configure(opts config.Options) error {
	if opts.Bool("strip_diacritics", false) {
		n.marks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	}
	n.lower = opts.Bool("lower", false)
	return nil
}

func (n *Normalize) Prepare(_ *flow.Process, call *operator.Call) error {
	if err := sameShape(ClassNormalize, call); err != nil {
		return err
	}
	n.vals = make([]any, call.ArgumentFields().Arity())
	return nil
}

func (n *Normalize) Operate(_ *flow.Process, call *operator.Call) error {
	args := call.Arguments()
	for i := range n.vals {
		v := args.At(i)
		if s, ok := v.(string); ok {
			v = n.clean(s)
		}
		n.vals[i] = v
	}
	return call.Emit(n.vals...)
}

func (n *Normalize) clean(s string) string {
	s = strings.TrimSpace(nbspReplacer.Replace(s))
	if n.marks != nil {
		if out, _, err := transform.String(n.marks, s); err == nil {
			s = out
		}
	}
	if n.lower {
		s = strings.ToLower(s)
	}
	return s
}
