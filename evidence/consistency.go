package evidence

// CheckDocument verifies that signature, certificate, timestamp and
// revocation ids are unique. Duplicate ids make every reference ambiguous,
// so they fail the whole document. A revocation entry about a certificate
// the document does not carry is unused, not malformed.
func (d *DiagnosticData) CheckDocument() error {
	seen := make(map[string]bool, len(d.Certificates))
	for _, c := range d.Certificates {
		if c == nil || c.ID == "" {
			return NewMalformedEvidenceError("", "certificate without id")
		}
		if seen[c.ID] {
			return NewMalformedEvidenceError("", "duplicate certificate id %s", c.ID)
		}
		seen[c.ID] = true
	}

	sigs := make(map[string]bool, len(d.Signatures))
	tss := make(map[string]bool)
	for _, s := range d.Signatures {
		if s == nil || s.ID == "" {
			return NewMalformedEvidenceError("", "signature without id")
		}
		if sigs[s.ID] {
			return NewMalformedEvidenceError("", "duplicate signature id %s", s.ID)
		}
		sigs[s.ID] = true
		for _, ts := range s.Timestamps {
			if ts == nil || ts.ID == "" {
				return NewMalformedEvidenceError(s.ID, "timestamp without id")
			}
			if tss[ts.ID] {
				return NewMalformedEvidenceError(s.ID, "duplicate timestamp id %s", ts.ID)
			}
			tss[ts.ID] = true
		}
	}

	revs := make(map[string]bool, len(d.Revocations))
	for _, r := range d.Revocations {
		if r == nil || r.ID == "" {
			return NewMalformedEvidenceError("", "revocation entry without id")
		}
		if revs[r.ID] {
			return NewMalformedEvidenceError("", "duplicate revocation id %s", r.ID)
		}
		revs[r.ID] = true
	}
	return nil
}

// CheckConsistency verifies the evidence of one signature before any
// validation check runs. A failure means the evidence cannot be reasoned
// about at all and is returned as a *MalformedEvidenceError. An unknown
// signing certificate id is left to the validation checks, which report it
// as NO_SIGNING_CERTIFICATE.
func (d *DiagnosticData) CheckConsistency(sigID string) error {
	s, ok := d.Signature(sigID)
	if !ok {
		return NewMalformedEvidenceError(sigID, "unknown signature")
	}
	size := int64(len(d.Document))

	if !s.SignatureRange.Within(size) {
		return NewMalformedEvidenceError(sigID, "signature range %s outside document of %d bytes", s.SignatureRange, size)
	}
	if err := d.checkChain(sigID, s.CertificateChain); err != nil {
		return err
	}

	for _, ts := range s.Timestamps {
		if !ts.CoveredRange.Within(size) {
			return NewMalformedEvidenceError(sigID, "timestamp %s covers range %s outside document of %d bytes", ts.ID, ts.CoveredRange, size)
		}
		if !ts.TokenRange.Within(size) {
			return NewMalformedEvidenceError(sigID, "timestamp %s stored at range %s outside document of %d bytes", ts.ID, ts.TokenRange, size)
		}
		if err := d.checkChain(sigID, ts.CertificateChain); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiagnosticData) checkChain(sigID string, ids []string) error {
	for _, id := range ids {
		c, ok := d.Certificate(id)
		if !ok {
			return NewMalformedEvidenceError(sigID, "chain references unknown certificate %s", id)
		}
		if c.IssuerDN == "" {
			return NewMalformedEvidenceError(sigID, "certificate %s has no issuer", id)
		}
	}
	return nil
}
