package recon

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKinds = []Kind{
	KindOrphanedIdentity,
	KindOrphanedProfile,
	KindIDCollision,
	KindEmailMismatch,
}

func TestSeverityTableCoversEveryKind(t *testing.T) {
	for _, k := range allKinds {
		sev, ok := kindSeverities[k]
		require.True(t, ok, "kind %s has no severity", k)
		_, ok = severityRank[sev]
		require.True(t, ok, "severity %s of kind %s has no rank", sev, k)
	}
	assert.Len(t, kindSeverities, len(allKinds))
}

func TestKindSeverities(t *testing.T) {
	assert.Equal(t, SeverityCritical, KindIDCollision.Severity())
	assert.Equal(t, SeverityHigh, KindOrphanedIdentity.Severity())
	assert.Equal(t, SeverityHigh, KindEmailMismatch.Severity())
	assert.Equal(t, SeverityMedium, KindOrphanedProfile.Severity())
}

func TestDescribeNamesTheRecords(t *testing.T) {
	id := uuid.New()

	assert.Contains(t, OrphanedIdentity{IdentityID: id, Addr: "a@b.c"}.Describe(), id.String())
	assert.Contains(t, OrphanedProfile{ProfileID: id, Addr: "a@b.c"}.Describe(), "a@b.c")
	assert.Contains(t, EmailMismatch{RecordID: id, IdentityEmail: "x@y.z", ProfileEmail: "old@y.z"}.Describe(), "x@y.z")

	c := IDCollision{Addr: "a@b.c", IdentityIDs: []uuid.UUID{id}}
	assert.Contains(t, c.Describe(), "a@b.c")
	assert.Contains(t, c.Describe(), id.String())
}
