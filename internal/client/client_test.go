package client_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/client"
	"github.com/TheMichaelB/jobhunt/internal/storage"
	"github.com/TheMichaelB/jobhunt/test/testutil"
)

type staticSecret string

func (s staticSecret) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(string(s))}, nil
}

func TestNewWithLocalBackend(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := testutil.TestConfigWithDir(t.TempDir())
	require.NoError(t, cfg.EnsureDirectories())

	c, err := client.New(ctx, cfg, testutil.NewTestLogger(),
		client.WithModel(testutil.NewScriptedModel(testutil.AnalysisJSON)),
		client.WithHolder("cli-test"))
	require.NoError(t, err)
	defer c.Close()

	job, err := c.Jobs.Add(ctx, testutil.SampleJob("1"))
	require.NoError(t, err)

	report, err := c.Jobs.AnalyzePending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, report.Analyzed)

	// the database now lives in the local "remote" directory
	_, err = c.Store.Stat(ctx, cfg.Database.ObjectKey)
	assert.NoError(t, err)

	st, err := c.Lock.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Equal(t, "cli-test", c.Lock.Holder())

	families, err := c.Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["jobhunt_sessions_total"])
	assert.True(t, names["jobhunt_llm_attempts_total"])
}

func TestNewAppliesSecrets(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := testutil.TestConfigWithDir(t.TempDir())
	cfg.Secrets.SecretID = "jobhunt/test"

	c, err := client.New(ctx, cfg, testutil.NewTestLogger(),
		client.WithStore(storage.NewMemoryStore()),
		client.WithSecretsClient(staticSecret(`{"llm_api_key": "k-9", "slack_webhook_url": "https://hooks.example/z"}`)))
	require.NoError(t, err)

	assert.Equal(t, "k-9", c.Config().LLM.APIKey)
	assert.Equal(t, "https://hooks.example/z", c.Config().Notify.SlackWebhookURL)
}

func TestModelIsBuiltLazily(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := testutil.TestConfigWithDir(t.TempDir())
	cfg.LLM.APIKey = ""

	// no API key: construction succeeds, only model calls fail
	c, err := client.New(ctx, cfg, testutil.NewTestLogger(), client.WithStore(storage.NewMemoryStore()))
	require.NoError(t, err)

	_, err = c.Jobs.Add(ctx, testutil.SampleJob("1"))
	require.NoError(t, err)

	report, err := c.Jobs.AnalyzePending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, report.Failed, 1)
}
