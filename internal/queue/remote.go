package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"formrunner/internal/config"
)

var jst = time.FixedZone("JST", 9*60*60)

// Remote talks to the hosted persistence layer through its PostgREST
// surface: named RPCs for queue transitions, table endpoints for company
// rows and the duplicate guard.
type Remote struct {
	base             string
	key              string
	http             *http.Client
	companyTable     string
	queueTable       string
	submissionsTable string
	useExtra         bool
	log              *zap.Logger
}

func NewRemote(env config.Env, log *zap.Logger) (*Remote, error) {
	if env.StoreURL == "" || env.StoreKey == "" {
		return nil, fmt.Errorf("persistence credentials missing")
	}
	companies := env.CompanyTable
	if companies == "" {
		companies = "companies"
	}
	sendQueue := env.SendQueueTable
	if sendQueue == "" {
		sendQueue = "send_queue"
	}
	submissions := "submissions"
	if env.UseExtraTables() {
		submissions += "_extra"
	}
	return &Remote{
		base:             strings.TrimRight(env.StoreURL, "/"),
		key:              env.StoreKey,
		http:             &http.Client{Timeout: 30 * time.Second},
		companyTable:     companies,
		queueTable:       sendQueue,
		submissionsTable: submissions,
		useExtra:         env.UseExtraTables(),
		log:              log,
	}, nil
}

// rpcError is the PostgREST error body.
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	status  int
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d %s: %s", e.status, e.Code, e.Message)
}

// missingFunction matches only the errors that mean the suffixed RPC does
// not exist. Business errors must never trigger the legacy fallback.
func missingFunction(err error) bool {
	re, ok := err.(*rpcError)
	if !ok {
		return false
	}
	return re.Code == "PGRST202" || re.Code == "42883"
}

func (r *Remote) call(ctx context.Context, fn string, body, out interface{}) error {
	if r.useExtra {
		err := r.callOnce(ctx, fn+"_extra", body, out)
		if err == nil || !missingFunction(err) {
			return err
		}
		r.log.Warn("suffixed rpc missing, falling back", zap.String("fn", fn))
	}
	return r.callOnce(ctx, fn, body, out)
}

func (r *Remote) callOnce(ctx context.Context, fn string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.base+"/rest/v1/rpc/"+fn, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	r.setAuth(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", fn, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		re := &rpcError{status: resp.StatusCode}
		_ = json.Unmarshal(data, re)
		return re
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func (r *Remote) setAuth(req *http.Request) {
	req.Header.Set("apikey", r.key)
	req.Header.Set("Authorization", "Bearer "+r.key)
}

func (r *Remote) ClaimNext(ctx context.Context, p ClaimParams) (*Entry, error) {
	body := map[string]interface{}{
		"p_target_date":  p.TargetDate,
		"p_targeting_id": p.TargetingID,
		"p_run_id":       p.RunID,
		"p_limit":        1,
	}
	if p.ShardID >= 0 {
		body["p_shard_id"] = p.ShardID
	}
	if p.MaxDaily > 0 {
		body["p_max_daily"] = p.MaxDaily
	}
	var rows []Entry
	if err := r.call(ctx, "claim_next_batch", body, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *Remote) MarkDone(ctx context.Context, p MarkDoneParams) error {
	body := map[string]interface{}{
		"p_target_date":     p.TargetDate,
		"p_targeting_id":    p.TargetingID,
		"p_company_id":      p.CompanyID,
		"p_success":         p.Success,
		"p_classify_detail": p.ClassifyDetail,
		"p_bot_protection":  p.BotProtection,
		"p_submitted_at":    p.SubmittedAt.In(jst).Format(time.RFC3339),
		"p_run_id":          p.RunID,
	}
	if p.ErrorType != "" {
		body["p_error_type"] = p.ErrorType
	}
	if len(p.FieldMapping) > 0 {
		body["p_field_mapping"] = p.FieldMapping
	}
	return r.call(ctx, "mark_done", body, nil)
}

func (r *Remote) RequeueStale(ctx context.Context, targetDate string, targetingID int64, staleMinutes int) (int, error) {
	var count int
	err := r.call(ctx, "requeue_stale_assigned", map[string]interface{}{
		"p_target_date":   targetDate,
		"p_targeting_id":  targetingID,
		"p_stale_minutes": staleMinutes,
	}, &count)
	return count, err
}

// Requeue returns a held claim directly through the queue table: only the
// assigned row flips back, so a concurrent mark-done wins.
func (r *Remote) Requeue(ctx context.Context, targetDate string, targetingID, companyID int64) error {
	payload := []byte(`{"status":"pending","assigned_by":null,"assigned_at":null}`)
	u := fmt.Sprintf("%s/rest/v1/%s?target_date=eq.%s&targeting_id=eq.%d&company_id=eq.%d&status=eq.assigned",
		r.base, r.queueTable, url.QueryEscape(targetDate), targetingID, companyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	r.setAuth(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("requeue company %d: status %d", companyID, resp.StatusCode)
	}
	return nil
}

func (r *Remote) FetchCompany(ctx context.Context, companyID int64) (*Company, error) {
	q := url.Values{}
	q.Set("id", "eq."+strconv.FormatInt(companyID, 10))
	q.Set("limit", "1")
	var rows []Company
	if err := r.get(ctx, r.companyTable, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *Remote) UpdateCompany(ctx context.Context, companyID int64, patch CompanyPatch) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/rest/v1/%s?id=eq.%d", r.base, r.companyTable, companyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	r.setAuth(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("update company %d: %d %s", companyID, resp.StatusCode, string(data))
	}
	return nil
}

func (r *Remote) HasSubmissionToday(ctx context.Context, targetDate string, targetingID, companyID int64) (bool, error) {
	start, end, err := jstDayBounds(targetDate)
	if err != nil {
		return false, err
	}
	q := url.Values{}
	q.Set("targeting_id", "eq."+strconv.FormatInt(targetingID, 10))
	q.Set("company_id", "eq."+strconv.FormatInt(companyID, 10))
	q.Set("submitted_at", "gte."+start)
	q.Add("submitted_at", "lt."+end)
	q.Set("select", "company_id")
	q.Set("limit", "1")
	var rows []struct {
		CompanyID int64 `json:"company_id"`
	}
	if err := r.get(ctx, r.submissionsTable, q, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (r *Remote) CountTodaySuccesses(ctx context.Context, targetDate string, targetingID int64) (int, error) {
	start, end, err := jstDayBounds(targetDate)
	if err != nil {
		return 0, err
	}
	q := url.Values{}
	q.Set("targeting_id", "eq."+strconv.FormatInt(targetingID, 10))
	q.Set("success", "eq.true")
	q.Set("submitted_at", "gte."+start)
	q.Add("submitted_at", "lt."+end)
	q.Set("select", "company_id")

	u := r.base + "/rest/v1/" + r.submissionsTable + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return 0, err
	}
	r.setAuth(req)
	req.Header.Set("Prefer", "count=exact")
	resp, err := r.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("count successes: status %d", resp.StatusCode)
	}
	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

func (r *Remote) get(ctx context.Context, table string, q url.Values, out interface{}) error {
	u := r.base + "/rest/v1/" + table + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	r.setAuth(req)
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		re := &rpcError{status: resp.StatusCode}
		_ = json.Unmarshal(data, re)
		return re
	}
	return json.Unmarshal(data, out)
}

func (r *Remote) Close() error { return nil }

// jstDayBounds converts a YYYY-MM-DD target date into RFC3339 JST bounds.
func jstDayBounds(targetDate string) (string, string, error) {
	day, err := time.ParseInLocation("2006-01-02", targetDate, jst)
	if err != nil {
		return "", "", fmt.Errorf("target date %q: %w", targetDate, err)
	}
	return day.Format(time.RFC3339), day.AddDate(0, 0, 1).Format(time.RFC3339), nil
}

// parseContentRangeTotal reads the total from a PostgREST "0-24/57" range.
func parseContentRangeTotal(header string) (int, error) {
	_, total, ok := strings.Cut(header, "/")
	if !ok {
		return 0, fmt.Errorf("malformed content-range %q", header)
	}
	if total == "*" {
		return 0, nil
	}
	return strconv.Atoi(total)
}
