// Package httpapi exposes the pool mirror over REST.
package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/metrics"
	"github.com/basesafe/pool-service/internal/app/services/pools"
	"github.com/basesafe/pool-service/internal/errors"
	"github.com/basesafe/pool-service/pkg/logger"
)

// handler bundles the pool endpoints.
type handler struct {
	pools   *pools.Service
	watcher *pools.Watcher
	log     *logger.Logger
}

// NewHandler returns a router exposing the pool REST API. watcher may be
// nil; the default listing then always hits the store.
func NewHandler(svc *pools.Service, watcher *pools.Watcher, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{pools: svc, watcher: watcher, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/pools", h.postPools).Methods(http.MethodPost)
	r.HandleFunc("/pools", h.getPools).Methods(http.MethodGet)
	r.HandleFunc("/pools", h.patchPool).Methods(http.MethodPatch)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// createPoolRequest mirrors the pool-creation body.
type createPoolRequest struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	PoolType           string   `json:"poolType"`
	CreatorAddress     string   `json:"creatorAddress"`
	PoolAddress        string   `json:"poolAddress"`
	TokenAddress       string   `json:"tokenAddress"`
	Members            []string `json:"members"`
	ContributionAmount float64  `json:"contributionAmount"`
	Frequency          string   `json:"frequency"`
	TargetAmount       float64  `json:"targetAmount"`
	Deadline           string   `json:"deadline"`
	MinimumDeposit     float64  `json:"minimumDeposit"`
	WithdrawalFee      int64    `json:"withdrawalFee"`
	YieldEnabled       bool     `json:"yieldEnabled"`
	TxHash             string   `json:"txHash"`
}

// logActivityRequest mirrors the activity-logging body. Its presence is
// detected by a non-empty activityType.
type logActivityRequest struct {
	PoolID          string  `json:"poolId"`
	ActivityType    string  `json:"activityType"`
	UserAddress     string  `json:"userAddress"`
	Amount          float64 `json:"amount"`
	TxHash          string  `json:"txHash"`
	ContractAddress string  `json:"contractAddress"`
	Description     string  `json:"description"`
}

// postPools serves both pool creation and activity logging; the two bodies
// are told apart by the activityType field.
func (h *handler) postPools(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		writeError(w, errors.Validation("unreadable request body"))
		return
	}

	var probe struct {
		ActivityType string `json:"activityType"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeError(w, errors.Validation("invalid JSON body"))
		return
	}

	if probe.ActivityType != "" {
		h.logActivity(w, r, body)
		return
	}
	h.createPool(w, r, body)
}

func (h *handler) createPool(w http.ResponseWriter, r *http.Request, body []byte) {
	var req createPoolRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.Validation("invalid JSON body"))
		return
	}

	in := pools.CreateInput{
		Name:               req.Name,
		Description:        req.Description,
		Kind:               pool.Kind(req.PoolType),
		CreatorAddress:     req.CreatorAddress,
		PoolAddress:        req.PoolAddress,
		TokenAddress:       req.TokenAddress,
		Members:            req.Members,
		TxHash:             req.TxHash,
		ContributionAmount: req.ContributionAmount,
		Frequency:          req.Frequency,
		TargetAmount:       req.TargetAmount,
		MinimumDeposit:     req.MinimumDeposit,
		WithdrawalFeeBps:   req.WithdrawalFee,
		YieldEnabled:       req.YieldEnabled,
	}
	if req.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			writeError(w, errors.Validation("deadline must be RFC 3339"))
			return
		}
		in.Deadline = deadline
	}

	created, err := h.pools.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) logActivity(w http.ResponseWriter, r *http.Request, body []byte) {
	var req logActivityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.Validation("invalid JSON body"))
		return
	}

	activity, err := h.pools.RecordActivity(r.Context(), pools.RecordActivityInput{
		PoolID:       req.PoolID,
		Kind:         pool.ActivityKind(req.ActivityType),
		Actor:        req.UserAddress,
		Amount:       req.Amount,
		Description:  req.Description,
		TxHash:       req.TxHash,
		ContractHint: req.ContractAddress,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"activity": activity,
	})
}

func (h *handler) getPools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if id := q.Get("id"); id != "" {
		detail, err := h.pools.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}

	if creator := q.Get("creator"); creator != "" {
		list, err := h.pools.ListByCreator(r.Context(), creator)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	if h.watcher != nil {
		if recent := h.watcher.Recent(); len(recent) > 0 {
			writeJSON(w, http.StatusOK, recent)
			return
		}
	}

	list, err := h.pools.ListRecent(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) patchPool(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.Validation("id query parameter is required"))
		return
	}

	var in pools.UpdateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		writeError(w, errors.Validation("invalid JSON body"))
		return
	}

	updated, err := h.pools.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps service errors onto their HTTP status; anything else
// becomes a generic 500 so internals never leak to the caller.
func writeError(w http.ResponseWriter, err error) {
	status := errors.Status(err)
	message := err.Error()
	var svcErr *errors.ServiceError
	if stderrors.As(err, &svcErr) {
		message = svcErr.Message
	}
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	payload := map[string]string{"error": message, "code": errors.CodeOf(err)}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
