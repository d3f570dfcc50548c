package certvalidator

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgepadayatti/adesval/certvalidator/revinfo"
	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func token(id, subject, issuer string) *evidence.CertificateToken {
	return &evidence.CertificateToken{
		ID:           id,
		SubjectDN:    subject,
		IssuerDN:     issuer,
		SerialNumber: id,
		NotBefore:    t0.AddDate(-1, 0, 0),
		NotAfter:     t0.AddDate(1, 0, 0),
		SelfSigned:   subject == issuer,
	}
}

type pki struct {
	root, ca, leaf *evidence.CertificateToken
}

func newPKI() pki {
	return pki{
		root: token("root", "CN=Root CA,O=Test", "CN=Root CA,O=Test"),
		ca:   token("ca", "CN=Issuing CA,O=Test", "CN=Root CA,O=Test"),
		leaf: token("leaf", "CN=Signer,O=Test", "CN=Issuing CA,O=Test"),
	}
}

func (p pki) candidates() []*evidence.CertificateToken {
	return []*evidence.CertificateToken{p.leaf, p.ca, p.root}
}

func good(id string, produced time.Time) *evidence.RevocationEntry {
	return &evidence.RevocationEntry{
		ID: "rev-" + id, CertificateID: id, Status: evidence.StatusGood,
		ProductionTime: produced, Source: evidence.SourceOCSP,
	}
}

func TestBuildChain(t *testing.T) {
	p := newPKI()

	t.Run("anchor excluded", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.root), nil)
		chain, anchor, err := r.BuildChain(p.leaf, p.candidates())
		require.NoError(t, err)
		assert.Equal(t, []string{"leaf", "ca"}, chain.IDs())
		assert.Equal(t, "root", anchor.ID)
		assert.True(t, chain.LinkedCorrectly())
	})

	t.Run("anchor included", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.root), nil, WithAnchorInChain(true))
		chain, _, err := r.BuildChain(p.leaf, p.candidates())
		require.NoError(t, err)
		assert.Equal(t, []string{"leaf", "ca", "root"}, chain.IDs())
		assert.True(t, chain.LinkedCorrectly())
	})

	t.Run("anchor found in trust store only", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.root), nil)
		chain, anchor, err := r.BuildChain(p.leaf, []*evidence.CertificateToken{p.leaf, p.ca})
		require.NoError(t, err)
		assert.Equal(t, []string{"leaf", "ca"}, chain.IDs())
		assert.Equal(t, "root", anchor.ID)
	})

	t.Run("intermediate is the anchor", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.ca), nil)
		chain, anchor, err := r.BuildChain(p.leaf, p.candidates())
		require.NoError(t, err)
		assert.Equal(t, []string{"leaf"}, chain.IDs())
		assert.Equal(t, "ca", anchor.ID)
	})

	t.Run("certificate is itself trusted", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.leaf), nil)
		chain, anchor, err := r.BuildChain(p.leaf, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"leaf"}, chain.IDs())
		assert.Equal(t, "leaf", anchor.ID)
	})

	t.Run("DN comparison is normalized", func(t *testing.T) {
		ca := token("ca", "cn=issuing ca, o=test", "CN=Root CA,O=Test")
		r := NewResolver(NewTrustedSource(p.root), nil)
		chain, _, err := r.BuildChain(p.leaf, []*evidence.CertificateToken{p.leaf, ca})
		require.NoError(t, err)
		assert.Equal(t, []string{"leaf", "ca"}, chain.IDs())
	})

	t.Run("missing issuer", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.root), nil)
		_, _, err := r.BuildChain(p.leaf, []*evidence.CertificateToken{p.leaf})
		var nte *NoTrustedChainError
		require.ErrorAs(t, err, &nte)
		assert.Equal(t, "leaf", nte.Certificate.ID)
		assert.Equal(t, []string{"leaf"}, nte.Partial)
	})

	t.Run("untrusted self-signed root", func(t *testing.T) {
		other := token("other", "CN=Other Root", "CN=Other Root")
		r := NewResolver(NewTrustedSource(other), nil)
		_, _, err := r.BuildChain(p.leaf, p.candidates())
		var nte *NoTrustedChainError
		require.ErrorAs(t, err, &nte)
		assert.Equal(t, "root", nte.Certificate.ID)
	})

	t.Run("cycle", func(t *testing.T) {
		a := token("a", "CN=A", "CN=B")
		b := token("b", "CN=B", "CN=A")
		r := NewResolver(NewTrustedSource(p.root), nil)
		_, _, err := r.BuildChain(a, []*evidence.CertificateToken{a, b})
		var nte *NoTrustedChainError
		require.ErrorAs(t, err, &nte)
		assert.Contains(t, nte.Error(), "cycle")
	})

	t.Run("nil certificate", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.root), nil)
		_, _, err := r.BuildChain(nil, nil)
		assert.Equal(t, ades.SubIndicationNoTrustedChain, SubIndicationFor(err))
	})
}

func TestBuildChainTerminatesOnCyclicChains(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	root := token("root", "CN=Root", "CN=Root")
	r := NewResolver(NewTrustedSource(root), nil)

	properties.Property("arbitrary issuer graphs never reach an unrelated anchor", prop.ForAll(
		func(links []int) bool {
			n := len(links)
			certs := make([]*evidence.CertificateToken, n)
			for i, l := range links {
				issuer := l % n
				certs[i] = token(fmt.Sprintf("c%d", i), fmt.Sprintf("CN=C%d", i), fmt.Sprintf("CN=C%d", issuer))
			}
			for _, start := range certs {
				_, _, err := r.BuildChain(start, certs)
				var nte *NoTrustedChainError
				if !errors.As(err, &nte) {
					return false
				}
				if len(nte.Partial) > n+1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.IntRange(0, 7)).SuchThat(func(v []int) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}

func TestResolve(t *testing.T) {
	p := newPKI()
	allGood := revinfo.NewIndex([]*evidence.RevocationEntry{
		good("leaf", t0.Add(time.Hour)),
		good("ca", t0.Add(time.Hour)),
	})

	t.Run("valid chain", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.root), allGood, WithRequiredRevocation(true))
		res, err := r.Resolve(p.leaf, p.candidates(), t0)
		require.NoError(t, err)
		assert.Equal(t, []string{"leaf", "ca"}, res.ChainIDs())
		require.Len(t, res.Statuses, 2)
		assert.Equal(t, revinfo.OutcomeGood, res.Statuses[0].Outcome)
		assert.Equal(t, "rev-leaf", res.Statuses[0].RevocationID)
		assert.Empty(t, res.Warnings)
	})

	t.Run("anchor validity not checked", func(t *testing.T) {
		root := token("root", "CN=Root CA,O=Test", "CN=Root CA,O=Test")
		root.NotAfter = t0.Add(-time.Hour)
		r := NewResolver(NewTrustedSource(root), allGood, WithAnchorInChain(true))
		_, err := r.Resolve(p.leaf, []*evidence.CertificateToken{p.leaf, p.ca, root}, t0)
		require.NoError(t, err)
	})

	t.Run("expired intermediate", func(t *testing.T) {
		ca := token("ca", "CN=Issuing CA,O=Test", "CN=Root CA,O=Test")
		ca.NotAfter = t0.Add(-time.Second)
		r := NewResolver(NewTrustedSource(p.root), allGood)
		res, err := r.Resolve(p.leaf, []*evidence.CertificateToken{p.leaf, ca}, t0)
		var expired *ExpiredError
		require.ErrorAs(t, err, &expired)
		assert.Equal(t, "ca", expired.Certificate.ID)
		assert.Equal(t, ades.SubIndicationExpired, SubIndicationFor(err))
		require.NotNil(t, res)
		assert.Equal(t, []string{"leaf", "ca"}, res.ChainIDs())
	})

	t.Run("not yet valid", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.root), allGood)
		_, err := r.Resolve(p.leaf, p.candidates(), p.leaf.NotBefore.Add(-time.Second))
		assert.Equal(t, ades.SubIndicationNotYetValid, SubIndicationFor(err))
	})

	t.Run("validity bounds are inclusive", func(t *testing.T) {
		idx := revinfo.NewIndex([]*evidence.RevocationEntry{
			good("leaf", p.leaf.NotAfter), good("ca", p.leaf.NotAfter),
		})
		r := NewResolver(NewTrustedSource(p.root), idx)
		_, err := r.Resolve(p.leaf, p.candidates(), p.leaf.NotAfter)
		require.NoError(t, err)
	})

	t.Run("revoked intermediate", func(t *testing.T) {
		revokedAt := t0.Add(-24 * time.Hour)
		idx := revinfo.NewIndex([]*evidence.RevocationEntry{
			good("leaf", t0.Add(time.Hour)),
			{
				ID: "crl-ca", CertificateID: "ca", Status: evidence.StatusRevoked,
				ProductionTime: t0.Add(time.Hour), RevocationTime: &revokedAt,
				Reason: "keyCompromise", Source: evidence.SourceCRL,
			},
		})
		r := NewResolver(NewTrustedSource(p.root), idx)
		_, err := r.Resolve(p.leaf, p.candidates(), t0)
		var revoked *RevokedError
		require.ErrorAs(t, err, &revoked)
		assert.Equal(t, "ca", revoked.Certificate.ID)
		assert.Equal(t, "keyCompromise", revoked.Reason)
		assert.True(t, revoked.RevocationTime.Equal(revokedAt))
		assert.Equal(t, ades.SubIndicationRevoked, SubIndicationFor(err))
	})

	t.Run("unknown status", func(t *testing.T) {
		idx := revinfo.NewIndex([]*evidence.RevocationEntry{{
			ID: "u", CertificateID: "leaf", Status: evidence.StatusUnknown,
			ProductionTime: t0.Add(time.Hour), Source: evidence.SourceOCSP,
		}})
		r := NewResolver(NewTrustedSource(p.root), idx)
		_, err := r.Resolve(p.leaf, p.candidates(), t0)
		assert.Equal(t, ades.SubIndicationRevocationUnavailable, SubIndicationFor(err))
	})

	t.Run("missing revocation warns by default", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.root), revinfo.NewIndex(nil))
		res, err := r.Resolve(p.leaf, p.candidates(), t0)
		require.NoError(t, err)
		assert.Len(t, res.Warnings, 2)
		assert.Equal(t, revinfo.OutcomeMissing, res.Statuses[0].Outcome)
	})

	t.Run("missing revocation fails when required", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(p.root), revinfo.NewIndex(nil), WithRequiredRevocation(true))
		_, err := r.Resolve(p.leaf, p.candidates(), t0)
		var unavailable *RevocationUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, "leaf", unavailable.Certificate.ID)
	})

	t.Run("no chain", func(t *testing.T) {
		r := NewResolver(NewTrustedSource(token("x", "CN=X", "CN=X")), allGood)
		res, err := r.Resolve(p.leaf, p.candidates(), t0)
		assert.Nil(t, res)
		assert.Equal(t, ades.SubIndicationNoTrustedChain, SubIndicationFor(err))
	})
}
