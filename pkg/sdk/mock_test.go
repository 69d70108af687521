package matchdex

import (
	"context"

	"github.com/kailas-cloud/matchdex/internal/domain"
	domusage "github.com/kailas-cloud/matchdex/internal/domain/usage"
	healthuc "github.com/kailas-cloud/matchdex/internal/usecase/health"
	profileuc "github.com/kailas-cloud/matchdex/internal/usecase/profile"
	"github.com/kailas-cloud/matchdex/internal/usecase/recommend"
	swipeuc "github.com/kailas-cloud/matchdex/internal/usecase/swipe"
)

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

type mockCompleter struct {
	got []Message
	out string
	err error
}

func (m *mockCompleter) Complete(_ context.Context, msgs []Message, _ float32, _ int) (string, error) {
	m.got = msgs
	return m.out, m.err
}

type mockRecommend struct {
	feedReq recommend.FeedRequest
	chatReq recommend.ChatRequest
	batch   domain.RecommendationBatch
	err     error
}

func (m *mockRecommend) Feed(_ context.Context, req recommend.FeedRequest) (domain.RecommendationBatch, error) {
	m.feedReq = req
	return m.batch, m.err
}

func (m *mockRecommend) Chat(_ context.Context, req recommend.ChatRequest) (domain.RecommendationBatch, error) {
	m.chatReq = req
	return m.batch, m.err
}

type mockSwipes struct {
	result  swipeuc.Result
	history []domain.Interaction
	err     error
}

func (m *mockSwipes) Record(_ context.Context, actorID, targetID, direction string) (swipeuc.Result, error) {
	if m.err != nil {
		return swipeuc.Result{}, m.err
	}
	if m.result.Interaction.ActorID == "" {
		m.result.Interaction = domain.Interaction{
			ActorID: actorID, TargetID: targetID, Direction: domain.Direction(direction),
		}
	}
	return m.result, nil
}

func (m *mockSwipes) History(_ context.Context, _ string) ([]domain.Interaction, error) {
	return m.history, m.err
}

type mockProfiles struct {
	stored  map[string]domain.Profile
	indexed bool
	err     error
}

func newMockProfiles() *mockProfiles {
	return &mockProfiles{stored: map[string]domain.Profile{}, indexed: true}
}

func (m *mockProfiles) Upsert(_ context.Context, p domain.Profile) (profileuc.UpsertResult, error) {
	if m.err != nil {
		return profileuc.UpsertResult{}, m.err
	}
	m.stored[p.UserID] = p
	return profileuc.UpsertResult{Profile: p, Indexed: m.indexed}, nil
}

func (m *mockProfiles) Get(_ context.Context, userID string) (domain.Profile, error) {
	p, ok := m.stored[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockProfiles) Delete(_ context.Context, userID string) error {
	if _, ok := m.stored[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.stored, userID)
	return nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

type mockUsage struct {
	report domusage.Report
}

func (m *mockUsage) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	r := m.report
	r.Period = period
	return r
}
