package vars

import (
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

// ExpandDescriptor resolves {{name}} placeholders across the text fields of a
// descriptor and returns the expanded copy. The input descriptor is never
// modified. On an undefined variable the partially expanded copy is returned
// together with the first error so callers can decide whether to proceed.
func ExpandDescriptor(r *Resolver, d *reqspec.Descriptor) (*reqspec.Descriptor, error) {
	if r == nil || d == nil {
		return d, nil
	}

	out := d.Clone()
	var firstErr error
	expand := func(s string) string {
		if s == "" {
			return s
		}
		v, err := r.ExpandTemplates(s)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}

	out.URL = expand(out.URL)
	expandPairs(out.Headers, expand)
	expandPairs(out.QueryParams, expand)
	out.Body.Text = expand(out.Body.Text)

	auth := &out.Auth
	auth.Username = expand(auth.Username)
	auth.Password = expand(auth.Password)
	auth.Token = expand(auth.Token)
	auth.Key = expand(auth.Key)
	auth.HeaderName = expand(auth.HeaderName)
	if auth.Mint != nil {
		auth.Mint.TokenURL = expand(auth.Mint.TokenURL)
		auth.Mint.TokenPath = expand(auth.Mint.TokenPath)
		auth.Mint.Body = expand(auth.Mint.Body)
		expandPairs(auth.Mint.Headers, expand)
	}

	return out, firstErr
}

func expandPairs(pairs reqspec.PairList, expand func(string) string) {
	for i := range pairs {
		pairs[i].Key = expand(pairs[i].Key)
		pairs[i].Value = expand(pairs[i].Value)
	}
}
