// services/judge_client.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"duel-arena-system/models"
	"duel-arena-system/utils"
)

// SubmissionSource is the read surface the allocator and resolver need from
// the judge.
type SubmissionSource interface {
	FetchAcceptedProblemIDs(ctx context.Context, userID string, fromSecond int64) map[string]int64
}

// JudgeClient wraps the external judge's public API. All submission reads
// fail soft: a judge outage must not crash a running tournament, so errors
// degrade to "no submissions" and the caller treats unknown as not solved.
type JudgeClient struct {
	BaseURL string // e.g. "https://kenkoooo.com/atcoder"
	Host    string // e.g. "atcoder.jp", for problem page links
	Client  *http.Client
}

func NewJudgeClient(baseURL, host string) *JudgeClient {
	return &JudgeClient{
		BaseURL: baseURL,
		Host:    host,
		Client:  utils.HTTPClient,
	}
}

// judgeSubmission matches one entry of the submissions endpoint response.
type judgeSubmission struct {
	ProblemID   string `json:"problem_id"`
	Result      string `json:"result"`
	EpochSecond int64  `json:"epoch_second"`
}

// catalogEntry matches one entry of merged-problems.json.
type catalogEntry struct {
	ID        string `json:"id"`
	ContestID string `json:"contest_id"`
	Title     string `json:"title"`
}

const acceptedVerdict = "AC"

// FetchAcceptedProblemIDs returns problem id -> earliest acceptance epoch at
// or after fromSecond for the given user. Any transport or parse failure
// yields an empty map.
func (jc *JudgeClient) FetchAcceptedProblemIDs(ctx context.Context, userID string, fromSecond int64) map[string]int64 {
	accepted := make(map[string]int64)

	endpoint, err := jc.endpoint("/atcoder-api/v3/user/submissions", url.Values{
		"user":        {userID},
		"from_second": {strconv.FormatInt(fromSecond, 10)},
	})
	if err != nil {
		log.Printf("[JUDGE] ⚠️ bad submissions URL for %s: %v", userID, err)
		return accepted
	}

	var subs []judgeSubmission
	if err := jc.getJSON(ctx, endpoint, &subs); err != nil {
		log.Printf("[JUDGE] ⚠️ submissions fetch for %s failed, treating as none: %v", userID, err)
		return accepted
	}

	for _, sub := range subs {
		if sub.Result != acceptedVerdict || sub.EpochSecond < fromSecond {
			continue
		}
		if prev, ok := accepted[sub.ProblemID]; !ok || sub.EpochSecond < prev {
			accepted[sub.ProblemID] = sub.EpochSecond
		}
	}
	return accepted
}

// FetchLatestAcceptedSubmission returns the acceptance epoch of userID's
// earliest AC on problemID at or after sinceEpoch. Same soft-fail contract as
// FetchAcceptedProblemIDs.
func (jc *JudgeClient) FetchLatestAcceptedSubmission(ctx context.Context, userID, problemID string, sinceEpoch int64) (int64, bool) {
	accepted := jc.FetchAcceptedProblemIDs(ctx, userID, sinceEpoch)
	epoch, ok := accepted[problemID]
	return epoch, ok
}

// FetchProblemCatalog loads the full problem list, filters it to the tiered
// beginner tasks, and returns it in stable ascending-id order. Called at
// setup and by the catalog sync worker; errors here are real errors.
func (jc *JudgeClient) FetchProblemCatalog(ctx context.Context) ([]models.Problem, error) {
	endpoint, err := jc.endpoint("/resources/merged-problems.json", nil)
	if err != nil {
		return nil, err
	}

	var entries []catalogEntry
	if err := jc.getJSON(ctx, endpoint, &entries); err != nil {
		return nil, fmt.Errorf("fetch problem catalog: %w", err)
	}

	problems := make([]models.Problem, 0, len(entries))
	for _, e := range entries {
		tier, ok := models.TierOf(e.ID)
		if !ok {
			continue
		}
		problems = append(problems, models.Problem{
			ID:        e.ID,
			ContestID: e.ContestID,
			Title:     e.Title,
			Tier:      tier,
			URL:       models.TaskURL(jc.Host, e.ContestID, e.ID),
		})
	}
	sort.Slice(problems, func(i, j int) bool { return problems[i].ID < problems[j].ID })
	return problems, nil
}

// VerifyUser checks that a judge user id exists. Setup-screen glue only; a
// non-2xx answer means the id is invalid.
func (jc *JudgeClient) VerifyUser(ctx context.Context, userID string) (bool, error) {
	endpoint, err := jc.endpoint("/atcoder-api/v3/user/detail", url.Values{"user": {userID}})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := jc.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer drainAndClose(resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func (jc *JudgeClient) endpoint(path string, query url.Values) (string, error) {
	base, err := url.Parse(jc.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid judge base URL %q: %w", jc.BaseURL, err)
	}
	u := base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func (jc *JudgeClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := jc.Client.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("judge returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// drainAndClose prevents connection leaks on reused keep-alive sockets.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
