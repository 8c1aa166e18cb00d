package sheets

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestValidCellRef(t *testing.T) {
	valid := []string{"A2", "D2", "E100", "AA17", " B3 "}
	for _, ref := range valid {
		if !ValidCellRef(ref) {
			t.Errorf("Expected %q to be a valid cell reference", ref)
		}
	}

	invalid := []string{"", "A", "2", "A0", "A2:B3", "Sheet1!A2", "A-2", "1A", "=A2"}
	for _, ref := range invalid {
		if ValidCellRef(ref) {
			t.Errorf("Expected %q to be rejected", ref)
		}
	}
}

func TestWriteCellRejectsBadRefBeforeRemoteCall(t *testing.T) {
	// Validation happens before the service is touched, so a zero client is
	// enough to exercise it.
	c := &Client{}

	err := c.WriteCell(context.Background(), "sheet-id", "Control", "A2:B3", "x")
	if err == nil {
		t.Fatal("Expected a validation error")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %T: %v", err, err)
	}
	if verr.Field != "cell" {
		t.Errorf("Expected field 'cell', got %q", verr.Field)
	}
}

func TestNewClientMissingCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), "testdata/does-not-exist.json")
	if err == nil {
		t.Fatal("Expected an auth error for a missing credentials file")
	}

	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("Expected AuthError, got %T: %v", err, err)
	}
	if strings.Contains(aerr.Error(), "private_key") {
		t.Errorf("Auth error message must not carry credential material: %q", aerr.Error())
	}
}

func TestNewClientFromJSONEmpty(t *testing.T) {
	_, err := NewClientFromJSON(context.Background(), nil)
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("Expected AuthError for empty JSON, got %T: %v", err, err)
	}
}
