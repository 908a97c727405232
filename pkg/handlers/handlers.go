// Package handlers contains the gateway's built-in message handlers and
// the envelope contracts for the platform's domain handlers. The domain
// algorithms themselves (skill analysis, recommendation ranking, problem
// similarity) live behind collaborator interfaces; only the envelope
// round-trip is owned here.
package handlers

import (
	"context"
	"errors"

	"github.com/practicehub/realtime-gateway/pkg/auth"
	"github.com/practicehub/realtime-gateway/pkg/gateway"
	"github.com/practicehub/realtime-gateway/pkg/wire"
)

// Message types handled by this package.
const (
	TypePing               = wire.TypePing
	TypeAuthenticate       = "authenticate"
	TypeAnalyzeSkill       = "analyze-skill"
	TypeGetRecommendations = "get-recommendations"
	TypeMatchProblems      = "match-problems"
)

// Success response types.
const (
	TypePong            = wire.TypePong
	TypeAuthenticated   = "authenticated"
	TypeSkillReport     = "skill-report"
	TypeRecommendations = "recommendations"
	TypeProblemMatches  = "problem-matches"
)

// Handler-defined error codes.
const (
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeAuthUnavailable      = "AUTH_UNAVAILABLE"
	CodeAlreadyAuthenticated = "ALREADY_AUTHENTICATED"
)

// Ping answers with a pong. Pure and synchronous with zero side effects,
// so it doubles as a reachability probe independent of business-logic
// health; every inbound frame already counts as liveness proof.
func Ping() gateway.HandlerFunc {
	return func(_ context.Context, _ gateway.ClientHandle, env *wire.Envelope) (*wire.Envelope, error) {
		return wire.NewResponse(env.ID, TypePong, map[string]string{"message": "pong"})
	}
}

// AuthenticateRequest is the payload of an authenticate message.
type AuthenticateRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// AuthenticateResponse reports the outcome of an authenticate exchange.
type AuthenticateResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message"`
}

// Authenticate verifies the presented credentials through v and, on
// success, binds the user to the connection. Rejected credentials come
// back as success=false; only an unreachable or misconfigured verifier
// is an error envelope (AUTH_UNAVAILABLE). Re-authenticating as the same
// user is idempotent; switching users on a live connection is refused
// with ALREADY_AUTHENTICATED.
func Authenticate(v auth.Verifier) gateway.HandlerFunc {
	return func(ctx context.Context, client gateway.ClientHandle, env *wire.Envelope) (*wire.Envelope, error) {
		var req AuthenticateRequest
		if err := env.DecodeData(&req); err != nil || req.UserID == "" || req.Token == "" {
			return nil, &wire.HandlerError{
				Code:    CodeInvalidArgument,
				Message: "authenticate requires userId and token",
			}
		}

		ok, err := v.Verify(ctx, req.UserID, req.Token)
		if err != nil {
			return nil, &wire.HandlerError{
				Code:    CodeAuthUnavailable,
				Message: "credential verification is currently unavailable",
			}
		}
		if !ok {
			return wire.NewResponse(env.ID, TypeAuthenticated, AuthenticateResponse{
				Success: false,
				Message: "invalid credentials",
			})
		}

		if err := client.BindUser(req.UserID); err != nil {
			if errors.Is(err, gateway.ErrUserAlreadyBound) {
				return nil, &wire.HandlerError{
					Code:    CodeAlreadyAuthenticated,
					Message: "connection is already authenticated as another user",
				}
			}
			return nil, err
		}
		return wire.NewResponse(env.ID, TypeAuthenticated, AuthenticateResponse{
			Success: true,
			UserID:  req.UserID,
			Message: "authenticated",
		})
	}
}

// AnalyzeSkillRequest asks for a skill assessment of one user.
type AnalyzeSkillRequest struct {
	UserID   string `json:"userId"`
	Category string `json:"category,omitempty"`
}

// SkillReport is the analyzer's assessment.
type SkillReport struct {
	UserID string             `json:"userId"`
	Level  string             `json:"level"`
	Scores map[string]float64 `json:"scores"`
}

// SkillAnalyzer is the external collaborator behind analyze-skill.
type SkillAnalyzer interface {
	AnalyzeSkill(ctx context.Context, req AnalyzeSkillRequest) (SkillReport, error)
}

// AnalyzeSkill round-trips analyze-skill envelopes through a.
func AnalyzeSkill(a SkillAnalyzer) gateway.HandlerFunc {
	return func(ctx context.Context, _ gateway.ClientHandle, env *wire.Envelope) (*wire.Envelope, error) {
		var req AnalyzeSkillRequest
		if err := env.DecodeData(&req); err != nil || req.UserID == "" {
			return nil, &wire.HandlerError{Code: CodeInvalidArgument, Message: "analyze-skill requires userId"}
		}
		report, err := a.AnalyzeSkill(ctx, req)
		if err != nil {
			return nil, err
		}
		return wire.NewResponse(env.ID, TypeSkillReport, report)
	}
}

// RecommendationsRequest asks for problems the user should try next.
type RecommendationsRequest struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit,omitempty"`
}

// Recommendation is one ranked suggestion.
type Recommendation struct {
	ProblemID  string  `json:"problemId"`
	Title      string  `json:"title"`
	Difficulty string  `json:"difficulty"`
	Score      float64 `json:"score"`
}

// Recommender is the external collaborator behind get-recommendations.
type Recommender interface {
	Recommend(ctx context.Context, req RecommendationsRequest) ([]Recommendation, error)
}

// GetRecommendations round-trips get-recommendations envelopes through r.
func GetRecommendations(r Recommender) gateway.HandlerFunc {
	return func(ctx context.Context, _ gateway.ClientHandle, env *wire.Envelope) (*wire.Envelope, error) {
		var req RecommendationsRequest
		if err := env.DecodeData(&req); err != nil || req.UserID == "" {
			return nil, &wire.HandlerError{Code: CodeInvalidArgument, Message: "get-recommendations requires userId"}
		}
		recs, err := r.Recommend(ctx, req)
		if err != nil {
			return nil, err
		}
		return wire.NewResponse(env.ID, TypeRecommendations, map[string]any{"recommendations": recs})
	}
}

// MatchProblemsRequest asks for catalog problems similar to a
// free-text description.
type MatchProblemsRequest struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// ProblemMatch is one similarity hit.
type ProblemMatch struct {
	ProblemID  string  `json:"problemId"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// ProblemMatcher is the external collaborator behind match-problems.
type ProblemMatcher interface {
	MatchProblems(ctx context.Context, req MatchProblemsRequest) ([]ProblemMatch, error)
}

// MatchProblems round-trips match-problems envelopes through m.
func MatchProblems(m ProblemMatcher) gateway.HandlerFunc {
	return func(ctx context.Context, _ gateway.ClientHandle, env *wire.Envelope) (*wire.Envelope, error) {
		var req MatchProblemsRequest
		if err := env.DecodeData(&req); err != nil || req.Description == "" {
			return nil, &wire.HandlerError{Code: CodeInvalidArgument, Message: "match-problems requires description"}
		}
		matches, err := m.MatchProblems(ctx, req)
		if err != nil {
			return nil, err
		}
		return wire.NewResponse(env.ID, TypeProblemMatches, map[string]any{"matches": matches})
	}
}

// RegisterBuiltins wires ping and authenticate into gw.
func RegisterBuiltins(gw *gateway.Gateway, v auth.Verifier) error {
	if err := gw.Handle(TypePing, Ping()); err != nil {
		return err
	}
	return gw.Handle(TypeAuthenticate, Authenticate(v))
}

// RegisterDomain wires the domain handlers into gw.
func RegisterDomain(gw *gateway.Gateway, a SkillAnalyzer, r Recommender, m ProblemMatcher) error {
	if err := gw.Handle(TypeAnalyzeSkill, AnalyzeSkill(a)); err != nil {
		return err
	}
	if err := gw.Handle(TypeGetRecommendations, GetRecommendations(r)); err != nil {
		return err
	}
	return gw.Handle(TypeMatchProblems, MatchProblems(m))
}
