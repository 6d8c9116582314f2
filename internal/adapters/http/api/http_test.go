package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/catbracket/internal/adapters/catalog"
	"github.com/okian/catbracket/internal/adapters/http/api"
	service "github.com/okian/catbracket/internal/app"
	"github.com/okian/catbracket/internal/domain/backup"
	"github.com/okian/catbracket/internal/domain/game"
	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// stubDeps returns canned values and errors for every dependency.
type stubDeps struct {
	snap      game.SessionSnapshot
	gameErr   error
	decided   []string
	board     []types.Entry
	lastLimit int
	rankErr   error
	photos    []model.Photo
	imported  backup.Document
	storeErr  error
}

func (s *stubDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "activeGames": 3}
}

func (s *stubDeps) CreateGame(context.Context) (game.SessionSnapshot, error) {
	return s.snap, s.gameErr
}

func (s *stubDeps) Game(_ context.Context, id string) (game.SessionSnapshot, error) {
	if id != s.snap.ID {
		return game.SessionSnapshot{}, fmt.Errorf("%w: %s", service.ErrGameNotFound, id)
	}
	return s.snap, s.gameErr
}

func (s *stubDeps) Decide(_ context.Context, id string, seq int, winnerID string) (game.SessionSnapshot, error) {
	s.decided = append(s.decided, fmt.Sprintf("%s/%d/%s", id, seq, winnerID))
	return s.snap, s.gameErr
}

func (s *stubDeps) RestartGame(context.Context, string) (game.SessionSnapshot, error) {
	return s.snap, s.gameErr
}

func (s *stubDeps) EndGame(context.Context, string) error { return s.gameErr }

func (s *stubDeps) Photos(context.Context) ([]model.Photo, error) { return s.photos, s.storeErr }

func (s *stubDeps) Leaderboard(_ context.Context, limit int) ([]types.Entry, error) {
	s.lastLimit = limit
	return s.board, s.storeErr
}

func (s *stubDeps) Rank(_ context.Context, id string) (types.Entry, error) {
	if s.rankErr != nil {
		return types.Entry{}, s.rankErr
	}
	return types.Entry{Rank: 1, ImageID: id, Rating: 1516}, nil
}

func (s *stubDeps) ExportRatings(context.Context) (backup.Document, error) {
	return backup.Document{"a": {ImageID: "a", Elo: 1510, Wins: 1, Matchups: 1}}, s.storeErr
}

func (s *stubDeps) ImportRatings(_ context.Context, doc backup.Document) (int, error) {
	s.imported = doc
	return len(doc), s.storeErr
}

func (s *stubDeps) ResetRatings(context.Context) error { return s.storeErr }

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func playingSnapshot() game.SessionSnapshot {
	left := model.Photo{ID: "a", Filename: "a.webp"}
	right := model.Photo{ID: "b", Filename: "b.webp"}
	return game.SessionSnapshot{
		Snapshot: game.Snapshot{
			State:          game.StatePlaying,
			Round:          1,
			TotalRounds:    1,
			MatchInRound:   1,
			MatchesInRound: 1,
			Current:        &model.Matchup{Left: left, Right: right},
			TotalPhotos:    2,
		},
		ID:       "g1",
		Seq:      1,
		Deadline: time.Date(2025, 1, 1, 0, 0, 8, 0, time.UTC),
	}
}

func TestGameRoutes(t *testing.T) {
	Convey("Given an API over stub dependencies", t, func() {
		deps := &stubDeps{snap: playingSnapshot()}
		mux := newMux(deps)

		Convey("POST /games creates a game", func() {
			w := do(mux, http.MethodPost, "/games", "")
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Header().Get("Location"), ShouldEqual, "/games/g1")
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")

			var body map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["state"], ShouldEqual, "playing")
			match := body["match"].(map[string]any)
			So(match["seq"], ShouldEqual, float64(1))
			So(match["left"].(map[string]any)["id"], ShouldEqual, "a")
		})

		Convey("GET /games/{id} returns 404 for an unknown game", func() {
			w := do(mux, http.MethodGet, "/games/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, "game_not_found")
		})

		Convey("POST /games/{id}/decisions passes the pick through", func() {
			w := do(mux, http.MethodPost, "/games/g1/decisions", `{"match":1,"winner_id":"a"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.decided, ShouldResemble, []string{"g1/1/a"})
		})

		Convey("An empty winner is a no-decision", func() {
			w := do(mux, http.MethodPost, "/games/g1/decisions", `{"match":1}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.decided, ShouldResemble, []string{"g1/1/"})
		})

		Convey("A decision without a match number is a bad request", func() {
			w := do(mux, http.MethodPost, "/games/g1/decisions", `{"winner_id":"a"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.decided, ShouldBeEmpty)
		})

		Convey("Malformed JSON is a bad request", func() {
			w := do(mux, http.MethodPost, "/games/g1/decisions", `{`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Game errors map to status codes", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{game.ErrStaleMatch, http.StatusConflict, "stale_match"},
				{game.ErrUnknownCompetitor, http.StatusBadRequest, "unknown_competitor"},
				{game.ErrSessionClosed, http.StatusGone, "game_closed"},
				{service.ErrTooManyGames, http.StatusServiceUnavailable, "unavailable"},
				{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
			}
			for _, c := range cases {
				deps.gameErr = c.err
				w := do(mux, http.MethodPost, "/games/g1/decisions", `{"match":1,"winner_id":"a"}`)
				So(w.Code, ShouldEqual, c.status)
				So(errorCode(w), ShouldEqual, c.code)
			}
		})

		Convey("A failed decision carries the reopened match", func() {
			deps.snap.Seq = 2
			deps.snap.LastError = "disk full"
			deps.gameErr = errors.New("disk full")
			w := do(mux, http.MethodPost, "/games/g1/decisions", `{"match":1,"winner_id":"a"}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)

			var body struct {
				Code string `json:"code"`
				Game struct {
					ID        string `json:"id"`
					LastError string `json:"last_error"`
					Match     struct {
						Seq int `json:"seq"`
					} `json:"match"`
				} `json:"game"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.Code, ShouldEqual, "internal_error")
			So(body.Game.ID, ShouldEqual, "g1")
			So(body.Game.Match.Seq, ShouldEqual, 2)
			So(body.Game.LastError, ShouldEqual, "disk full")
		})

		Convey("Errors outside a game carry no game body", func() {
			deps.snap = game.SessionSnapshot{}
			deps.gameErr = service.ErrGameNotFound
			w := do(mux, http.MethodPost, "/games/nope/decisions", `{"match":1}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(w.Body.String(), ShouldNotContainSubstring, `"game"`)
		})

		Convey("DELETE /games/{id} ends the game", func() {
			w := do(mux, http.MethodDelete, "/games/g1", "")
			So(w.Code, ShouldEqual, http.StatusNoContent)
		})

		Convey("POST /games/{id}/restart returns the new bracket", func() {
			w := do(mux, http.MethodPost, "/games/g1/restart", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Wrong methods are rejected by the mux", func() {
			w := do(mux, http.MethodPut, "/games/g1", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestDecisionRateLimit(t *testing.T) {
	Convey("Given a decision limit of one per second with no burst", t, func() {
		deps := &stubDeps{snap: playingSnapshot()}
		mux := newMux(deps, api.WithDecisionRate(1, 1))

		first := do(mux, http.MethodPost, "/games/g1/decisions", `{"match":1,"winner_id":"a"}`)
		second := do(mux, http.MethodPost, "/games/g1/decisions", `{"match":1,"winner_id":"a"}`)

		Convey("Then the second decision is throttled", func() {
			So(first.Code, ShouldEqual, http.StatusOK)
			So(second.Code, ShouldEqual, http.StatusTooManyRequests)
			So(errorCode(second), ShouldEqual, "rate_limited")
			So(deps.decided, ShouldHaveLength, 1)
		})
	})
}

func TestReadRoutes(t *testing.T) {
	Convey("Given an API over stub dependencies", t, func() {
		deps := &stubDeps{
			board:  []types.Entry{{Rank: 1, ImageID: "a", Rating: 1516, Wins: 1, Matchups: 1, WinRate: 1}},
			photos: []model.Photo{{ID: "a", Filename: "a.webp"}},
		}
		mux := newMux(deps, api.WithMaxLeaderboardLimit(50))

		Convey("GET /leaderboard defaults to the maximum limit", func() {
			w := do(mux, http.MethodGet, "/leaderboard", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 50)

			var rows []types.Entry
			So(json.Unmarshal(w.Body.Bytes(), &rows), ShouldBeNil)
			So(rows, ShouldResemble, deps.board)
		})

		Convey("GET /leaderboard validates the limit", func() {
			So(do(mux, http.MethodGet, "/leaderboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/leaderboard?limit=abc", "").Code, ShouldEqual, http.StatusBadRequest)
			w := do(mux, http.MethodGet, "/leaderboard?limit=51", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "limit_exceeded")
		})

		Convey("GET /rank/{image_id} returns the row", func() {
			w := do(mux, http.MethodGet, "/rank/a", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"image_id":"a"`)
		})

		Convey("GET /rank/{image_id} is 404 for a photo that never played", func() {
			deps.rankErr = fmt.Errorf("%w: z", service.ErrNotRanked)
			w := do(mux, http.MethodGet, "/rank/z", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, "not_ranked")
		})

		Convey("GET /photos lists the catalog", func() {
			w := do(mux, http.MethodGet, "/photos", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"filename":"a.webp"`)
		})

		Convey("GET /photos is 500 when the catalog fails", func() {
			deps.storeErr = catalog.ErrUnavailable
			So(do(mux, http.MethodGet, "/photos", "").Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("GET /stats returns the service statistics", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"activeGames":3`)
		})

		Convey("GET /healthz serves Prometheus metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestRatingRoutes(t *testing.T) {
	Convey("Given an API over stub dependencies", t, func() {
		deps := &stubDeps{}
		mux := newMux(deps)

		Convey("GET /ratings/export returns the document as an attachment", func() {
			w := do(mux, http.MethodGet, "/ratings/export", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "ratings.json")
			So(w.Body.String(), ShouldContainSubstring, `"imageId":"a"`)
		})

		Convey("POST /ratings/import accepts the export format", func() {
			w := do(mux, http.MethodPost, "/ratings/import", `{"b":{"imageId":"b","elo":1490,"wins":0,"losses":1,"matchups":1}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"imported":1`)
			So(deps.imported["b"].Elo, ShouldEqual, 1490)
		})

		Convey("POST /ratings/import rejects invalid entries", func() {
			deps.storeErr = fmt.Errorf("%w: %w", service.ErrInvalidArgument, backup.ErrInvalidEntry)
			w := do(mux, http.MethodPost, "/ratings/import", `{"b":{"imageId":"c","elo":1}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("DELETE /ratings resets the leaderboard", func() {
			So(do(mux, http.MethodDelete, "/ratings", "").Code, ShouldEqual, http.StatusNoContent)
		})
	})
}

func TestAgainstService(t *testing.T) {
	Convey("Given the API over a running service with two photos", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithCatalog(catalog.NewStatic([]model.Photo{{ID: "a"}, {ID: "b"}})),
			service.WithMatchTimeout(time.Minute),
			service.WithRandomSeed(1),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)
		mux := newMux(svc)

		w := do(mux, http.MethodPost, "/games", "")
		So(w.Code, ShouldEqual, http.StatusCreated)
		var created struct {
			ID    string `json:"id"`
			Match struct {
				Seq  int         `json:"seq"`
				Left model.Photo `json:"left"`
			} `json:"match"`
		}
		So(json.Unmarshal(w.Body.Bytes(), &created), ShouldBeNil)

		Convey("When the only match is decided", func() {
			body, _ := json.Marshal(map[string]any{"match": created.Match.Seq, "winner_id": created.Match.Left.ID})
			w := do(mux, http.MethodPost, "/games/"+created.ID+"/decisions", string(body))

			Convey("Then the game is over and the winner leads", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"state":"finale"`)

				board := do(mux, http.MethodGet, "/leaderboard?limit=1", "")
				So(board.Body.String(), ShouldContainSubstring, `"image_id":"`+created.Match.Left.ID+`"`)
			})

			Convey("Then replaying the same match conflicts", func() {
				again := do(mux, http.MethodPost, "/games/"+created.ID+"/decisions", string(body))
				So(again.Code, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When a photo outside the match is picked", func() {
			body := fmt.Sprintf(`{"match":%d,"winner_id":"zzz"}`, created.Match.Seq)
			w := do(mux, http.MethodPost, "/games/"+created.ID+"/decisions", body)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "unknown_competitor")
			})
		})

		Convey("When ratings round-trip through export and import", func() {
			do(mux, http.MethodPost, "/ratings/import", `{"a":{"imageId":"a","elo":1600,"wins":2,"losses":0,"matchups":2}}`)
			w := do(mux, http.MethodGet, "/ratings/export", "")

			Convey("Then the export holds the imported entry", func() {
				var doc backup.Document
				So(json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&doc), ShouldBeNil)
				So(doc["a"].Elo, ShouldEqual, 1600)
			})
		})
	})
}
