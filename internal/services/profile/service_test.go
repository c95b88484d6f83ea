package profile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/llm"
	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/services/profile"
	"github.com/TheMichaelB/jobhunt/internal/storage"
	"github.com/TheMichaelB/jobhunt/test/testutil"
)

func newService(t *testing.T, model llm.Model) *profile.Service {
	t.Helper()

	synced := testutil.NewSyncedStore(t, storage.NewMemoryStore(), "p1")
	responder := llm.NewResponder(model, llm.Options{Logger: testutil.NewTestLogger()})
	return profile.NewService(synced, responder, testutil.NewTestLogger())
}

func TestExtractText(t *testing.T) {
	text, err := profile.ExtractText("notes.md", []byte("  Hello\t\tworld  \r\n\n\n\nNext line"))
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n\nNext line", text)

	_, err = profile.ExtractText("resume.docx", []byte("PK"))
	assert.ErrorIs(t, err, profile.ErrUnsupportedFormat)

	_, err = profile.ExtractText("resume.txt", []byte{0xff, 0xfe, 0x00})
	assert.ErrorContains(t, err, "UTF-8")

	_, err = profile.ExtractText("resume.pdf", []byte("not a pdf"))
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	svc := newService(t, testutil.NewScriptedModel())

	_, err := svc.Ingest(ctx, models.KindResume, "resume.md", []byte("Go developer"))
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, models.KindResume, "resume.md", []byte("Senior Go developer"))
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, models.KindProfile, "about.txt", []byte("Likes distributed systems"))
	require.NoError(t, err)

	resumes, err := svc.Documents(ctx, models.KindResume)
	require.NoError(t, err)
	require.Len(t, resumes, 1)
	assert.Equal(t, "Senior Go developer", resumes[0].Content)

	all, err := svc.Documents(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestIngestFile(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	svc := newService(t, testutil.NewScriptedModel())

	path := filepath.Join(t.TempDir(), "letter.txt")
	require.NoError(t, os.WriteFile(path, []byte("Dear team"), 0600))

	doc, err := svc.IngestFile(ctx, models.KindCoverLetter, path)
	require.NoError(t, err)
	assert.Equal(t, "letter.txt", doc.Name)
	assert.Equal(t, models.KindCoverLetter, doc.Kind)

	_, err = svc.IngestFile(ctx, models.KindResume, filepath.Join(t.TempDir(), "missing.md"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIngestRejectsBadInput(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	svc := newService(t, testutil.NewScriptedModel())

	var vErr *models.ValidationError
	_, err := svc.Ingest(ctx, models.KindResume, "empty.md", []byte(" \n\t "))
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "content", vErr.Field)

	_, err = svc.Ingest(ctx, models.DocumentKind("portfolio"), "a.md", []byte("x"))
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "kind", vErr.Field)
}

func TestDeriveTargetRoles(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	model := testutil.NewScriptedModel(testutil.FencedRolesJSON)
	svc := newService(t, model)

	_, err := svc.Ingest(ctx, models.KindResume, "resume.md", []byte("Ten years of Go"))
	require.NoError(t, err)

	roles, err := svc.DeriveTargetRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, model.Calls())
	assert.Equal(t, []models.TargetRole{
		{RoleName: "Backend Engineer", Priority: 1},
		{RoleName: "Platform Engineer", Priority: 2},
	}, roles)
	assert.Contains(t, model.Prompts()[0], "Ten years of Go")

	stored, err := svc.TargetRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, roles, stored)
}

func TestDeriveTargetRolesNormalizes(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	model := testutil.NewScriptedModel(`[
		{"role_name": " SRE ", "priority": 2, "rationale": "on-call experience"},
		{"role_name": "sre", "priority": 1},
		{"role_name": "", "priority": 1},
		{"role_name": "Data Engineer", "priority": 0}
	]`)
	svc := newService(t, model)

	_, err := svc.Ingest(ctx, models.KindProfile, "about.md", []byte("Ops background"))
	require.NoError(t, err)

	roles, err := svc.DeriveTargetRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.TargetRole{
		{RoleName: "Data Engineer", Priority: 1},
		{RoleName: "SRE", Priority: 2, Rationale: "on-call experience"},
	}, roles)
}

func TestDeriveTargetRolesNeedsProfile(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	model := testutil.NewScriptedModel(testutil.FencedRolesJSON)
	svc := newService(t, model)

	// sample letters alone are not a profile
	_, err := svc.Ingest(ctx, models.KindCoverLetter, "sample.md", []byte("Dear team"))
	require.NoError(t, err)

	_, err = svc.DeriveTargetRoles(ctx)
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, model.Calls())
}

func TestDeriveTargetRolesKeepsOldListOnFailure(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	model := testutil.NewScriptedModel(testutil.FencedRolesJSON)
	svc := newService(t, model)

	_, err := svc.Ingest(ctx, models.KindResume, "resume.md", []byte("Go"))
	require.NoError(t, err)
	_, err = svc.DeriveTargetRoles(ctx)
	require.NoError(t, err)

	model.Then(testutil.Reply{Text: ""})
	// the script repeats its last reply, so every remaining attempt is empty
	_, err = svc.DeriveTargetRoles(ctx)
	assert.ErrorIs(t, err, models.ErrNoStructuredData)

	stored, err := svc.TargetRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
