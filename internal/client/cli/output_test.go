package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/preshare/internal/client/client"
	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/dmitrijs2005/preshare/internal/gateway"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not owner before forbidden", fmt.Errorf("grant: %w", client.ErrNotOwner), "Only the owner can do that"},
		{"forbidden", fmt.Errorf("download: %w", client.ErrForbidden), "Access denied"},
		{"credentials", client.ErrInvalidCredentials, "Wrong username or password"},
		{"token", client.ErrInvalidToken, "Session expired"},
		{"partial", fmt.Errorf("grant: %w: %w", client.ErrPartialFailure, gateway.ErrUnavailable), "re-encryption keys were not refreshed"},
		{"gateway", gateway.ErrUnavailable, "Re-encryption gateway unreachable"},
		{"plain", errors.New("boom"), "Error: boom"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, describeError(tc.err), tc.want)
		})
	}
}

func TestDescribeError_UsesServerMessage(t *testing.T) {
	err := fmt.Errorf("create: %w", &client.APIError{Status: 400, Fields: map[string][]string{"file": {"No file was submitted."}}})
	assert.Equal(t, "Error: file: No file was submitted.", describeError(err))
}

func TestPrintRecords_Markers(t *testing.T) {
	items := []models.DataAccess{
		{ID: 1, DataID: 10, Owner: "alice", Readers: []string{}},
		{ID: 2, DataID: 11, Owner: "alice", Readers: []string{"bob", "carol"}},
	}
	var out bytes.Buffer
	printRecords(&out, "Owned records", items, func(id int64) bool { return id == 2 }, 2, true)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Owned records (2)")
	assert.True(t, strings.HasPrefix(lines[2], "-"), lines[2])
	assert.Contains(t, lines[2], "(none)")
	assert.True(t, strings.HasPrefix(lines[3], "*"), lines[3])
	assert.Contains(t, lines[3], "bob, carol")
}

func TestPrintRecords_Empty(t *testing.T) {
	var out bytes.Buffer
	printRecords(&out, "Granted records", nil, func(int64) bool { return true }, 0, false)
	assert.Contains(t, out.String(), "no records")
}
