package ledger_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/dispatch"
	"github.com/dmitrymomot/dialbill/pkg/ledger"
)

type s3Mock struct {
	mock.Mock
}

func (m *s3Mock) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func newArchive(t *testing.T, client ledger.S3Putter) *ledger.S3Writer {
	t.Helper()
	w, err := ledger.NewS3Writer(context.Background(), ledger.S3Config{
		Bucket: "billing",
		Region: "us-east-1",
		Prefix: "trail",
	}, ledger.WithS3Client(client))
	require.NoError(t, err)
	return w
}

func TestS3Writer_StoreBatch(t *testing.T) {
	t.Parallel()

	entries := []ledger.Entry{
		ledger.FromDispatch(dispatch.Change{ActionID: "a1", Flag: dispatch.FlagConfirm, Outcome: dispatch.OutcomeDispatched, At: at}),
		ledger.FromDispatch(dispatch.Change{ActionID: "a2", Flag: dispatch.FlagConfirm, Outcome: dispatch.OutcomeClaimLost, At: at}),
	}

	client := &s3Mock{}
	w := newArchive(t, client)
	wantKey := w.KeyFor(entries)
	assert.True(t, strings.HasPrefix(wantKey, "trail/2025/03/14/"))
	assert.True(t, strings.HasSuffix(wantKey, ".jsonl"))

	var lines []map[string]any
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "billing" && *in.Key == wantKey && *in.ContentType == "application/x-ndjson"
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		scanner := bufio.NewScanner(in.Body)
		for scanner.Scan() {
			var line map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
			lines = append(lines, line)
		}
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, w.StoreBatch(context.Background(), entries))
	client.AssertExpectations(t)
	require.Len(t, lines, 2)
	assert.Equal(t, "a1", lines[0]["action_id"])
	assert.Equal(t, "claim-lost", lines[1]["kind"])
}

func TestS3Writer_APIError(t *testing.T) {
	t.Parallel()

	client := &s3Mock{}
	client.On("PutObject", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}).Once()

	err := newArchive(t, client).StoreBatch(context.Background(), []ledger.Entry{{ID: "1", At: at}})
	require.ErrorIs(t, err, ledger.ErrArchiveFailed)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestNewS3Writer_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := ledger.NewS3Writer(context.Background(), ledger.S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, ledger.ErrInvalidS3Config)
	assert.False(t, ledger.S3Config{}.Enabled())
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	ok := &batchRecorder{}
	failing := &batchRecorder{err: errors.New("boom")}
	err := ledger.MultiWriter{failing, ok}.StoreBatch(context.Background(), []ledger.Entry{{ID: "1"}})
	assert.EqualError(t, err, "boom")
	assert.Len(t, ok.entries(), 1)
}
