package embed

import "fmt"

type errNoProviders struct{}

func (errNoProviders) Error() string {
	return "no embedding providers configured"
}

type errVectorCount int

func (e errVectorCount) Error() string {
	return fmt.Sprintf("provider returned %d vectors for 1 input", int(e))
}

type errDimension struct {
	got, want int
}

func (e errDimension) Error() string {
	return fmt.Sprintf("provider returned %d-dim vector, want %d", e.got, e.want)
}
