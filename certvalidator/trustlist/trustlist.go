// Package trustlist reads ETSI TS 119 612 trusted lists and turns the
// certificates of their currently approved services into trust anchors.
package trustlist

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/moov-io/signedxml"

	"github.com/georgepadayatti/adesval/certvalidator"
	"github.com/georgepadayatti/adesval/evidence"
)

// URI bases for ETSI trust service identifiers.
const (
	TrstSvcURIBase     = "http://uri.etsi.org/TrstSvc"
	TrustedListURIBase = TrstSvcURIBase + "/TrustedList"

	ServiceTypeCAQC    = TrstSvcURIBase + "/Svctype/CA/QC"
	ServiceTypeCAPKC   = TrstSvcURIBase + "/Svctype/CA/PKC"
	ServiceTypeTSAQTST = TrstSvcURIBase + "/Svctype/TSA/QTST"
	ServiceTypeTSA     = TrstSvcURIBase + "/Svctype/TSA"

	StatusGranted                   = TrustedListURIBase + "/Svcstatus/granted"
	StatusWithdrawn                 = TrustedListURIBase + "/Svcstatus/withdrawn"
	StatusRecognisedAtNationalLevel = TrustedListURIBase + "/Svcstatus/recognisedatnationallevel"
	StatusDeprecatedAtNationalLevel = TrustedListURIBase + "/Svcstatus/deprecatedatnationallevel"

	// Statuses of lists issued before eIDAS.
	StatusUnderSupervision       = TrstSvcURIBase + "/Svcstatus/undersupervision"
	StatusSupervisionInCessation = TrstSvcURIBase + "/Svcstatus/supervisionincessation"
	StatusAccredited             = TrstSvcURIBase + "/Svcstatus/accredited"
)

var approvedStatuses = map[string]bool{
	StatusGranted:                   true,
	StatusRecognisedAtNationalLevel: true,
	StatusUnderSupervision:          true,
	StatusSupervisionInCessation:    true,
	StatusAccredited:                true,
}

// ErrNotTrustedList is returned for XML whose root is not a
// TrustServiceStatusList.
var ErrNotTrustedList = errors.New("not a trusted list")

// SignatureError reports a trusted list whose XML signature could not be
// verified.
type SignatureError struct {
	Message string
}

func (e *SignatureError) Error() string {
	return e.Message
}

// ParseError reports a malformed element of a trusted list.
type ParseError struct {
	Element string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trusted list: %s: %v", e.Element, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StatusPeriod is a service status valid from Starting on.
type StatusPeriod struct {
	Status   string
	Starting time.Time
}

// Service is one trust service of a provider.
type Service struct {
	Provider     string
	Name         string
	Type         string
	Certificates []*x509.Certificate

	// Statuses holds the current status first, followed by the service
	// history.
	Statuses []StatusPeriod
}

// StatusAt returns the status in force at t, or "" when the service had
// no status yet.
func (s *Service) StatusAt(t time.Time) string {
	var (
		status string
		since  time.Time
	)
	for _, p := range s.Statuses {
		if p.Starting.After(t) {
			continue
		}
		if status == "" || p.Starting.After(since) {
			status, since = p.Status, p.Starting
		}
	}
	return status
}

// ApprovedAt reports whether the service had an approved status at t.
func (s *Service) ApprovedAt(t time.Time) bool {
	return approvedStatuses[s.StatusAt(t)]
}

// TrustedList is a parsed trusted list.
type TrustedList struct {
	Territory      string
	SequenceNumber int
	IssueTime      time.Time

	// NextUpdate is zero for a list whose scheme was closed.
	NextUpdate time.Time

	Services []*Service

	// Signer is the certificate that verified the list signature, nil for
	// a list parsed without verification.
	Signer *x509.Certificate
}

// Expired reports whether the list is past its next update at t.
func (l *TrustedList) Expired(t time.Time) bool {
	return !l.NextUpdate.IsZero() && t.After(l.NextUpdate)
}

// Anchors returns the certificates of the services approved at t. When
// types is not empty, only services of those types are considered.
// Duplicates are removed.
func (l *TrustedList) Anchors(t time.Time, types ...string) []*x509.Certificate {
	var (
		out  []*x509.Certificate
		seen = make(map[string]bool)
	)
	for _, svc := range l.Services {
		if len(types) > 0 && !contains(types, svc.Type) {
			continue
		}
		if !svc.ApprovedAt(t) {
			continue
		}
		for _, cert := range svc.Certificates {
			key := string(cert.Raw)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, cert)
		}
	}
	return out
}

// Source returns the anchors approved at t as a trusted certificate source.
func (l *TrustedList) Source(t time.Time, types ...string) *certvalidator.TrustedSource {
	return certvalidator.NewTrustedSource(evidence.CertificatesFromX509(l.Anchors(t, types...))...)
}

// Parse reads a trusted list without verifying its signature.
func Parse(data []byte) (*TrustedList, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("trusted list: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "TrustServiceStatusList" {
		return nil, ErrNotTrustedList
	}

	tl := &TrustedList{}
	if info := root.SelectElement("SchemeInformation"); info != nil {
		if err := tl.readSchemeInformation(info); err != nil {
			return nil, err
		}
	}

	for _, tsp := range root.FindElements("TrustServiceProviderList/TrustServiceProvider") {
		provider := firstName(tsp.FindElements("TSPInformation/TSPName/Name"))
		for _, el := range tsp.FindElements("TSPServices/TSPService") {
			svc, err := readService(el)
			if err != nil {
				return nil, err
			}
			svc.Provider = provider
			tl.Services = append(tl.Services, svc)
		}
	}
	return tl, nil
}

// ParseSigned verifies the list signature against the signer candidates
// and parses the signed content.
func ParseSigned(data []byte, signers []*x509.Certificate) (*TrustedList, error) {
	signed, signer, err := verify(string(data), signers)
	if err != nil {
		return nil, err
	}
	tl, err := Parse([]byte(signed))
	if err != nil {
		return nil, err
	}
	tl.Signer = signer
	return tl, nil
}

func (l *TrustedList) readSchemeInformation(info *etree.Element) error {
	if el := info.SelectElement("SchemeTerritory"); el != nil {
		l.Territory = strings.TrimSpace(el.Text())
	}
	if el := info.SelectElement("TSLSequenceNumber"); el != nil {
		n, err := strconv.Atoi(strings.TrimSpace(el.Text()))
		if err != nil {
			return &ParseError{Element: "TSLSequenceNumber", Err: err}
		}
		l.SequenceNumber = n
	}
	if el := info.SelectElement("ListIssueDateTime"); el != nil {
		t, err := parseDateTime(el.Text())
		if err != nil {
			return &ParseError{Element: "ListIssueDateTime", Err: err}
		}
		l.IssueTime = t
	}
	if el := info.FindElement("NextUpdate/dateTime"); el != nil {
		t, err := parseDateTime(el.Text())
		if err != nil {
			return &ParseError{Element: "NextUpdate", Err: err}
		}
		l.NextUpdate = t
	}
	return nil
}

func readService(el *etree.Element) (*Service, error) {
	info := el.SelectElement("ServiceInformation")
	if info == nil {
		return nil, &ParseError{Element: "TSPService", Err: errors.New("missing ServiceInformation")}
	}
	svc := &Service{
		Type: childText(info, "ServiceTypeIdentifier"),
		Name: firstName(info.FindElements("ServiceName/Name")),
	}

	current, err := readStatus(info)
	if err != nil {
		return nil, err
	}
	svc.Statuses = append(svc.Statuses, current)
	for _, h := range el.FindElements("ServiceHistory/ServiceHistoryInstance") {
		p, err := readStatus(h)
		if err != nil {
			return nil, err
		}
		svc.Statuses = append(svc.Statuses, p)
	}

	for _, c := range info.FindElements("ServiceDigitalIdentity/DigitalId/X509Certificate") {
		cert, err := parseCertificate(c.Text())
		if err != nil {
			return nil, &ParseError{Element: "X509Certificate", Err: err}
		}
		svc.Certificates = append(svc.Certificates, cert)
	}
	return svc, nil
}

func readStatus(el *etree.Element) (StatusPeriod, error) {
	p := StatusPeriod{Status: childText(el, "ServiceStatus")}
	if p.Status == "" {
		return p, &ParseError{Element: "ServiceStatus", Err: errors.New("missing status")}
	}
	t, err := parseDateTime(childText(el, "StatusStartingTime"))
	if err != nil {
		return p, &ParseError{Element: "StatusStartingTime", Err: err}
	}
	p.Starting = t
	return p, nil
}

// verify tries the newest candidates first, then all of them at once.
func verify(xmlContent string, signers []*x509.Certificate) (string, *x509.Certificate, error) {
	if len(signers) == 0 {
		return "", nil, &SignatureError{Message: "no trusted list signer certificates provided"}
	}
	sorted := append([]*x509.Certificate(nil), signers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NotBefore.After(sorted[j].NotBefore)
	})

	var lastErr error
	for _, cert := range sorted {
		signed, signer, err := verifyWith(xmlContent, []*x509.Certificate{cert})
		if err == nil {
			return signed, signer, nil
		}
		lastErr = err
	}
	if len(sorted) > 1 {
		if signed, signer, err := verifyWith(xmlContent, sorted); err == nil {
			return signed, signer, nil
		}
	}
	return "", nil, &SignatureError{Message: fmt.Sprintf(
		"none of the %d signer certificates could verify the trusted list: %v", len(signers), lastErr)}
}

func verifyWith(xmlContent string, certs []*x509.Certificate) (string, *x509.Certificate, error) {
	validator, err := signedxml.NewValidator(xmlContent)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create XML signature validator: %w", err)
	}
	values := make([]x509.Certificate, 0, len(certs))
	for _, c := range certs {
		values = append(values, *c)
	}
	validator.Certificates = values

	refs, err := validator.ValidateReferences()
	if err != nil {
		return "", nil, err
	}
	if len(refs) == 0 {
		return "", nil, errors.New("no signed content found")
	}

	signer := validator.SigningCert()
	var signerPtr *x509.Certificate
	if len(signer.Raw) > 0 {
		signerPtr = &signer
	}
	return refs[0], signerPtr, nil
}

func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date time %q", s)
}

func parseCertificate(text string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(text), ""))
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

// firstName prefers the English name.
func firstName(names []*etree.Element) string {
	for _, n := range names {
		if n.SelectAttrValue("xml:lang", "") == "en" {
			return strings.TrimSpace(n.Text())
		}
	}
	if len(names) > 0 {
		return strings.TrimSpace(names[0].Text())
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
