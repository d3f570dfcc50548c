package validation

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/georgepadayatti/adesval/evidence"
)

// constraintCostLimit bounds the evaluation cost of a single expression.
const constraintCostLimit = 10000

type constraint struct {
	expr string
	prg  cel.Program
}

// constraintSet holds compiled signature acceptance constraints. Compiled
// programs are safe for concurrent evaluation.
type constraintSet struct {
	items []constraint
}

// newConstraintEnv declares the variables visible to constraint expressions:
//
//	signature      map with id, format, declaredLevel, digestAlgorithm,
//	               encryptionAlgorithm, claimedSigningTime, chainLength,
//	               timestampCount and signingCertificate
//	referenceTime  the instant the signature is validated at
func newConstraintEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("signature", cel.DynType),
		cel.Variable("referenceTime", cel.TimestampType),
	)
}

// compileConstraints compiles expressions that must each yield a boolean.
func compileConstraints(exprs []string) (*constraintSet, error) {
	set := &constraintSet{}
	if len(exprs) == 0 {
		return set, nil
	}
	env, err := newConstraintEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	for i, expr := range exprs {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, &PolicyConfigurationError{
				Field:   fmt.Sprintf("signatureConstraints[%d]", i),
				Message: "compile failed",
				Err:     issues.Err(),
			}
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, &PolicyConfigurationError{
				Field:   fmt.Sprintf("signatureConstraints[%d]", i),
				Message: fmt.Sprintf("expression yields %s, want bool", out),
			}
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(constraintCostLimit),
		)
		if err != nil {
			return nil, &PolicyConfigurationError{
				Field:   fmt.Sprintf("signatureConstraints[%d]", i),
				Message: "program construction failed",
				Err:     err,
			}
		}
		set.items = append(set.items, constraint{expr: expr, prg: prg})
	}
	return set, nil
}

// constraintViolation describes a failed constraint. Err is set when the
// expression could not be evaluated.
type constraintViolation struct {
	Expr string
	Err  error
}

// evaluate runs every constraint and returns the first violation, nil when
// all constraints hold.
func (s *constraintSet) evaluate(data *evidence.DiagnosticData, sig *evidence.SignatureEvidence, at time.Time) *constraintViolation {
	if s == nil || len(s.items) == 0 {
		return nil
	}
	input := map[string]any{
		"signature":     constraintInput(data, sig),
		"referenceTime": at,
	}
	for _, c := range s.items {
		out, _, err := c.prg.Eval(input)
		if err != nil {
			return &constraintViolation{Expr: c.expr, Err: err}
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return &constraintViolation{Expr: c.expr, Err: fmt.Errorf("expression yielded %v", out.Type())}
		}
		if !ok {
			return &constraintViolation{Expr: c.expr}
		}
	}
	return nil
}

func constraintInput(data *evidence.DiagnosticData, sig *evidence.SignatureEvidence) map[string]any {
	in := map[string]any{
		"id":                  sig.ID,
		"format":              sig.Format,
		"declaredLevel":       sig.DeclaredLevel,
		"digestAlgorithm":     sig.DigestAlgorithm,
		"encryptionAlgorithm": sig.EncryptionAlgorithm,
		"chainLength":         int64(len(sig.CertificateChain)),
		"timestampCount":      int64(len(sig.Timestamps)),
	}
	if sig.ClaimedSigningTime != nil {
		in["claimedSigningTime"] = *sig.ClaimedSigningTime
	}
	if cert, ok := data.Certificate(sig.SigningCertificateID); ok {
		in["signingCertificate"] = map[string]any{
			"id":                 cert.ID,
			"subjectDN":          cert.SubjectDN,
			"issuerDN":           cert.IssuerDN,
			"serialNumber":       cert.SerialNumber,
			"publicKeyAlgorithm": cert.PublicKeyAlgorithm,
			"notBefore":          cert.NotBefore,
			"notAfter":           cert.NotAfter,
		}
	}
	return in
}
