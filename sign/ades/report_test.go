package ades

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConclusionConstructors(t *testing.T) {
	if c := Passed(); c.Indication != IndicationValid || c.SubIndication != SubIndicationNone {
		t.Errorf("Passed() = %s, want VALID without sub-indication", c)
	}
	if c := Indeterminate(SubIndicationExpired); !c.IsIndeterminate() || c.SubIndication != SubIndicationExpired {
		t.Errorf("Indeterminate(EXPIRED) = %s", c)
	}
	if c := Invalid(SubIndicationHashFailure); !c.IsInvalid() || c.SubIndication != SubIndicationHashFailure {
		t.Errorf("Invalid(HASH_FAILURE) = %s", c)
	}
}

func TestConclusionNilSafe(t *testing.T) {
	var c *Conclusion
	if c.IsValid() || c.IsInvalid() || c.IsIndeterminate() {
		t.Error("nil conclusion should report no indication")
	}
	if c.Copy() != nil {
		t.Error("Copy() of nil should be nil")
	}
	if c.String() != "<none>" {
		t.Errorf("String() = %q, want <none>", c.String())
	}
	if err := c.Validate(); err == nil {
		t.Error("Validate() of nil should fail")
	}
}

func TestConclusionMessages(t *testing.T) {
	c := Indeterminate(SubIndicationRevoked).
		AddError("x509", "revoked").
		AddWarning("revocation", "stale").
		AddInfo("referenceTime", "2024-01-01T00:00:00Z")

	if len(c.Errors) != 1 || c.Errors[0].Key != "x509" || c.Errors[0].Value != "revoked" {
		t.Errorf("Errors = %v", c.Errors)
	}
	if len(c.Warnings) != 1 || len(c.Infos) != 1 {
		t.Errorf("Warnings = %v, Infos = %v", c.Warnings, c.Infos)
	}
}

func TestConclusionCopyIsDeep(t *testing.T) {
	orig := Invalid(SubIndicationFormatFailure).AddError("format", "broken")
	cp := orig.Copy()
	cp.AddError("extra", "value")
	cp.Errors[0].Value = "changed"

	if len(orig.Errors) != 1 || orig.Errors[0].Value != "broken" {
		t.Errorf("original mutated through copy: %v", orig.Errors)
	}
}

func TestConclusionValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       *Conclusion
		wantErr bool
	}{
		{"valid", Passed(), false},
		{"indeterminate", Indeterminate(SubIndicationNoTimestamp), false},
		{"invalid", Invalid(SubIndicationCryptographicFailure), false},
		{"valid with sub", &Conclusion{Indication: IndicationValid, SubIndication: SubIndicationExpired}, true},
		{"indeterminate without sub", &Conclusion{Indication: IndicationIndeterminate}, true},
		{"unknown sub", &Conclusion{Indication: IndicationInvalid, SubIndication: "NOPE"}, true},
		{"unknown indication", &Conclusion{Indication: "PASSED"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConclusionString(t *testing.T) {
	if got := Passed().String(); got != "VALID" {
		t.Errorf("String() = %q, want VALID", got)
	}
	if got := Indeterminate(SubIndicationNoTrustedChain).String(); got != "INDETERMINATE (NO_TRUSTED_CHAIN)" {
		t.Errorf("String() = %q", got)
	}
}

func TestConclusionJSONOmitsEmptySubIndication(t *testing.T) {
	data, err := json.Marshal(Passed())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "subIndication") {
		t.Errorf("VALID conclusion serialized a sub-indication: %s", data)
	}
}

func TestRunChecks(t *testing.T) {
	var ran []string
	step := func(name string, failure *Conclusion) Check {
		return Check{Name: name, Run: func() *Conclusion {
			ran = append(ran, name)
			return failure
		}}
	}

	t.Run("all pass", func(t *testing.T) {
		ran = nil
		c, results := RunChecks([]Check{step("a", nil), step("b", nil)})
		if !c.IsValid() {
			t.Errorf("conclusion = %s, want VALID", c)
		}
		for _, r := range results {
			if r.Status != CheckPassed {
				t.Errorf("check %s status = %s, want PASSED", r.Name, r.Status)
			}
		}
	})

	t.Run("first failure wins", func(t *testing.T) {
		ran = nil
		c, results := RunChecks([]Check{
			step("a", nil),
			step("b", Indeterminate(SubIndicationExpired).AddError("x509", "expired")),
			step("c", Invalid(SubIndicationCryptographicFailure)),
		})
		if c.SubIndication != SubIndicationExpired {
			t.Errorf("sub-indication = %s, want EXPIRED", c.SubIndication)
		}
		if len(ran) != 2 {
			t.Errorf("ran %v, want checks after the failure to be skipped", ran)
		}
		want := []CheckStatus{CheckPassed, CheckFailed, CheckSkipped}
		if len(results) != len(want) {
			t.Fatalf("got %d results, want %d", len(results), len(want))
		}
		for i, r := range results {
			if r.Status != want[i] {
				t.Errorf("results[%d].Status = %s, want %s", i, r.Status, want[i])
			}
		}
		if results[1].Message != "expired" {
			t.Errorf("failure message = %q, want expired", results[1].Message)
		}
	})
}
