package certvalidator

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
)

func TestFormatRevokedError(t *testing.T) {
	cert := token("leaf", "CN=Signer", "CN=CA")
	rt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := FormatRevokedError(cert, &evidence.RevocationEntry{
		Source: evidence.SourceCRL, RevocationTime: &rt,
	})

	want := "CRL indicates CN=Signer was revoked at 03:04:05 on 2024-01-02, due to unspecified"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Reason != "unspecified" {
		t.Errorf("Reason = %q, want unspecified", err.Reason)
	}
	if err.Certificate != cert {
		t.Error("expected failing certificate to be recorded")
	}
}

func TestFormatValidityErrors(t *testing.T) {
	cert := token("leaf", "CN=Signer", "CN=CA")

	expired := FormatExpiredError(cert, cert.NotAfter.Add(time.Hour))
	if !strings.Contains(expired.Error(), "expired") {
		t.Errorf("Error() = %q, want mention of expiry", expired.Error())
	}
	if !expired.ExpiredAt.Equal(cert.NotAfter) {
		t.Errorf("ExpiredAt = %v, want %v", expired.ExpiredAt, cert.NotAfter)
	}

	early := FormatNotYetValidError(cert, cert.NotBefore.Add(-time.Hour))
	if !early.ValidFrom.Equal(cert.NotBefore) {
		t.Errorf("ValidFrom = %v, want %v", early.ValidFrom, cert.NotBefore)
	}
}

func TestSubIndicationFor(t *testing.T) {
	cert := token("leaf", "CN=Signer", "CN=CA")
	rt := t0

	tests := []struct {
		name string
		err  error
		want ades.SubIndication
	}{
		{"nil", nil, ades.SubIndicationNone},
		{"no chain", NewNoTrustedChainError("x", cert, nil), ades.SubIndicationNoTrustedChain},
		{"expired", FormatExpiredError(cert, t0), ades.SubIndicationExpired},
		{"not yet valid", FormatNotYetValidError(cert, t0), ades.SubIndicationNotYetValid},
		{"revoked", FormatRevokedError(cert, &evidence.RevocationEntry{RevocationTime: &rt}), ades.SubIndicationRevoked},
		{"unavailable", NewRevocationUnavailableError("x", cert), ades.SubIndicationRevocationUnavailable},
		{"wrapped", fmt.Errorf("resolving: %w", FormatExpiredError(cert, t0)), ades.SubIndicationExpired},
		{"foreign", errors.New("boom"), ades.SubIndicationNoTrustedChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SubIndicationFor(tt.err); got != tt.want {
				t.Errorf("SubIndicationFor() = %q, want %q", got, tt.want)
			}
		})
	}
}
