package api

import (
	"testing"

	"certCanvas/internal/database"
	"certCanvas/internal/design"
)

func TestCertificateFieldValue_MapsAllCatalogKeys(t *testing.T) {
	cert := &database.IssuedCertificate{
		RecipientName:    "Jordan Smith",
		CourseTitle:      "Advanced Cardiac Life Support",
		CompletionDate:   "June 12, 2026",
		CredentialNumber: "CERT-2026-00417",
		IssuerName:       "Northfield Training Institute",
		CreditHours:      8,
		CreditType:       "CE Credit",
		AccreditingBody:  "National Education Board",
		IssueDate:        "June 15, 2026",
	}

	// 目录里的每个键都必须能映射到签发记录的一个字段。
	for _, field := range design.CatalogFields() {
		value, ok := certificateFieldValue(cert, field.Key)
		if !ok {
			t.Errorf("field %s not mapped", field.Key)
			continue
		}
		if value == "" {
			t.Errorf("field %s resolved to empty value", field.Key)
		}
	}

	if got, _ := certificateFieldValue(cert, design.FieldCreditHours); got != "8" {
		t.Errorf("credit hours = %q, want 8", got)
	}
	if _, ok := certificateFieldValue(cert, "shoe_size"); ok {
		t.Error("unknown key reported as mapped")
	}
}

func TestCertificateFieldValue_EmptyValueStillMapped(t *testing.T) {
	cert := &database.IssuedCertificate{RecipientName: "A"}

	value, ok := certificateFieldValue(cert, design.FieldAccreditingBody)
	if !ok {
		t.Fatal("accrediting_body should be a known key")
	}
	if value != "" {
		t.Fatalf("value = %q, want empty", value)
	}
}
