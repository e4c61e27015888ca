package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"receipt-agent/internal/agent/orchestrator"
	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/dedupe"
	"receipt-agent/internal/extraction"
	"receipt-agent/internal/llm"
	"receipt-agent/internal/models"
	"receipt-agent/internal/prompts"
	"receipt-agent/internal/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tripA = `Service provider: Uber
Mode of travel: Cab
Date of travel: 2024-03-14
Time of travel: 09:42
Start location: Bommassandra Industrial Area, Hosur Road, Bengaluru
End location: Hitech City, Madhapur, Hyderabad, Telangana 500081
Distance: Not specified
Total amount: 503.00`

	tripANoisy = `Service provider: Uber
Mode of travel: Cab
Date of travel: 2024-03-14
Time of travel: 09:42
Start location: Bommasandra Industrial Area, Hosur Road, Bengaluru
End location: Hitech City, Madhapur, Hyderabad, Telangana
Total amount: 503.00`
)

// imageVision answers the classification prompt with TRAVEL_EXPENSE and the extraction
// prompt with the text stored under the image bytes.
type imageVision struct {
	answers map[string]string
	err     error
}

func (v *imageVision) Describe(_ context.Context, prompt string, image []byte, _ string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	if strings.Contains(prompt, "Only respond with the category name") {
		return "TRAVEL_EXPENSE", nil
	}
	return v.answers[string(image)], nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("rate limited")
}

type recordingAgent struct {
	mu    sync.Mutex
	calls []*models.ReceiptRecord
	err   error
}

func (a *recordingAgent) Run(_ context.Context, rec *models.ReceiptRecord, checked *dedupe.Checked) (*orchestrator.Session, error) {
	a.mu.Lock()
	a.calls = append(a.calls, rec)
	a.mu.Unlock()
	s := &orchestrator.Session{ReceiptID: rec.ID, ShortCircuited: checked.Verdict().IsDuplicate, State: models.StateDone}
	if a.err != nil {
		s.State = models.StateFailed
		return s, a.err
	}
	return s, nil
}

type memoryStages struct {
	mu     sync.Mutex
	stages map[string][]int
}

func (m *memoryStages) Record(_ context.Context, fileID, _ string, stage int, _ map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[fileID] = append(m.stages[fileID], stage)
	return nil
}

type setup struct {
	store  *vectorstore.MemoryStore
	agent  *recordingAgent
	stages *memoryStages
	vision *imageVision
}

func newProcessor(t *testing.T, embedder llm.Embedder) (*Processor, *setup) {
	t.Helper()
	s := &setup{
		store:  vectorstore.NewMemoryStore(),
		agent:  &recordingAgent{},
		stages: &memoryStages{stages: map[string][]int{}},
		vision: &imageVision{answers: map[string]string{"png-a": tripA, "png-a-noisy": tripANoisy}},
	}
	log := logger.NewTestLogger(t)
	th, err := dedupe.NewThresholds(dedupe.DefaultThreshold, nil)
	require.NoError(t, err)

	p := NewProcessor(
		extraction.New(s.vision, prompts.MustLoad(), log),
		embedder,
		dedupe.NewDetector(s.store, th, log),
		s.agent,
		s.stages,
		log,
	)
	return p, s
}

func doc(fileID, image string) extraction.Document {
	return extraction.Document{FileID: fileID, EmployeeID: "E1001", Data: []byte(image), ContentType: "image/png"}
}

func TestProcess_NovelThenDuplicate(t *testing.T) {
	p, s := newProcessor(t, llm.NewHashEmbedder(512))
	ctx := context.Background()

	first, err := p.Process(ctx, doc("f1", "png-a"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, first.Outcome)
	assert.Equal(t, models.CategoryTravel, first.Category)
	assert.Equal(t, models.OutcomeNoHistory, first.Verdict.Outcome)

	second, err := p.Process(ctx, doc("f2", "png-a-noisy"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.True(t, second.Verdict.IsDuplicate)
	assert.Equal(t, first.ReceiptID, second.Verdict.MatchedReceiptID)
	assert.GreaterOrEqual(t, second.Verdict.Score, dedupe.DefaultThreshold)

	// Both receipts are persisted regardless of verdict.
	for _, id := range []string{first.ReceiptID, second.ReceiptID} {
		rec, err := s.store.Record(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "E1001", rec.EmployeeID)
	}
	assert.Len(t, s.agent.calls, 2)

	assert.Equal(t, []int{
		models.StageProcessingStarts,
		models.StageClassified,
		models.StageExtracted,
		models.StageDuplicateCheck,
		models.StageAgentProcessing,
		models.StageCompleted,
	}, s.stages.stages["f1"])
}

func TestProcess_ExtractionFailure(t *testing.T) {
	p, s := newProcessor(t, llm.NewHashEmbedder(512))
	s.vision.err = errors.New("vision endpoint down")

	res, err := p.Process(context.Background(), doc("f1", "png-a"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExtractionFailed))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, string(apperrors.ErrCodeExtractionFailed), res.ErrorCode)
	assert.Empty(t, s.agent.calls)
	assert.Equal(t, []int{models.StageProcessingStarts, models.StageFailed}, s.stages.stages["f1"])
}

func TestProcess_EmbeddingFailureWritesNothing(t *testing.T) {
	p, s := newProcessor(t, failingEmbedder{})

	res, err := p.Process(context.Background(), doc("f1", "png-a"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmbeddingFailed))

	matches, err := s.store.Query(context.Background(), models.CategoryTravel, []float32{1})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotEmpty(t, res.ReceiptID)
	assert.Empty(t, s.agent.calls)
}

func TestProcess_InvalidSubmission(t *testing.T) {
	p, _ := newProcessor(t, llm.NewHashEmbedder(512))

	_, err := p.Process(context.Background(), extraction.Document{FileID: "f1", EmployeeID: "E1001"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidSubmission))
}

func TestProcess_AgentFailureKeepsRecord(t *testing.T) {
	p, s := newProcessor(t, llm.NewHashEmbedder(512))
	s.agent.err = apperrors.NewLoopExceededError(10)

	res, err := p.Process(context.Background(), doc("f1", "png-a"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLoopExceeded))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Session)
	assert.Equal(t, models.StateFailed, res.Session.State)

	_, err = s.store.Record(context.Background(), res.ReceiptID)
	assert.NoError(t, err)
}
