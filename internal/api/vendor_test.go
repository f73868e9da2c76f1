package api

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
)

// fakeVendor serves the subset of the Assistants REST API the server uses,
// so tests go through the real go-openai client.
type fakeVendor struct {
	mu sync.Mutex

	assistants map[string]map[string]any
	received   []map[string]any // assistant create/modify bodies as sent
	threads    map[string]map[string]any
	messages   map[string][]map[string]any

	runScript []map[string]any // poll responses in order; the last one repeats
	polls     int
	outputs   []openai.SubmitToolOutputsRequest
	cancelled int
	reply     string
	nextID    int
}

func newFakeVendor(t *testing.T) (*fakeVendor, *openai.Client) {
	t.Helper()

	v := &fakeVendor{
		assistants: map[string]map[string]any{},
		threads:    map[string]map[string]any{},
		messages:   map[string][]map[string]any{},
		runScript:  []map[string]any{{"status": "completed"}},
		reply:      "The adventure begins.",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/assistants", v.createAssistant)
	mux.HandleFunc("GET /v1/assistants", v.listAssistants)
	mux.HandleFunc("GET /v1/assistants/{id}", v.getAssistant)
	mux.HandleFunc("POST /v1/assistants/{id}", v.modifyAssistant)
	mux.HandleFunc("DELETE /v1/assistants/{id}", v.deleteAssistant)
	mux.HandleFunc("POST /v1/threads", v.createThread)
	mux.HandleFunc("GET /v1/threads/{id}", v.getThread)
	mux.HandleFunc("POST /v1/threads/{id}", v.modifyThread)
	mux.HandleFunc("DELETE /v1/threads/{id}", v.deleteThread)
	mux.HandleFunc("POST /v1/threads/{id}/messages", v.createMessage)
	mux.HandleFunc("GET /v1/threads/{id}/messages", v.listMessages)
	mux.HandleFunc("POST /v1/threads/{id}/runs", v.createRun)
	mux.HandleFunc("GET /v1/threads/{id}/runs/{run}", v.getRun)
	mux.HandleFunc("POST /v1/threads/{id}/runs/{run}/submit_tool_outputs", v.submitToolOutputs)
	mux.HandleFunc("POST /v1/threads/{id}/runs/{run}/cancel", v.cancelRun)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	return v, openai.NewClientWithConfig(cfg)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func notFound(w http.ResponseWriter, what, id string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf("No %s found with id '%s'.", what, id),
			"type":    "invalid_request_error",
			"code":    "not_found",
		},
	})
}

func decodeBody(r *http.Request) map[string]any {
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func (v *fakeVendor) id(prefix string) string {
	v.nextID++
	return fmt.Sprintf("%s_%d", prefix, v.nextID)
}

func (v *fakeVendor) createAssistant(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	a := decodeBody(r)
	v.received = append(v.received, maps.Clone(a))
	a["id"] = v.id("asst")
	a["object"] = "assistant"
	delete(a, "tools")
	v.assistants[a["id"].(string)] = a
	writeJSON(w, http.StatusOK, a)
}

func (v *fakeVendor) listAssistants(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	data := []map[string]any{}
	for _, a := range v.assistants {
		data = append(data, a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

func (v *fakeVendor) getAssistant(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := r.PathValue("id")
	a, ok := v.assistants[id]
	if !ok {
		notFound(w, "assistant", id)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (v *fakeVendor) modifyAssistant(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := r.PathValue("id")
	a, ok := v.assistants[id]
	if !ok {
		notFound(w, "assistant", id)
		return
	}
	body := decodeBody(r)
	v.received = append(v.received, body)
	for k, val := range body {
		if k != "tools" && val != nil {
			a[k] = val
		}
	}
	writeJSON(w, http.StatusOK, a)
}

func (v *fakeVendor) deleteAssistant(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := r.PathValue("id")
	if _, ok := v.assistants[id]; !ok {
		notFound(w, "assistant", id)
		return
	}
	delete(v.assistants, id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "object": "assistant.deleted", "deleted": true})
}

func (v *fakeVendor) createThread(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	body := decodeBody(r)
	th := map[string]any{"id": v.id("thread"), "object": "thread", "metadata": body["metadata"]}
	v.threads[th["id"].(string)] = th
	writeJSON(w, http.StatusOK, th)
}

func (v *fakeVendor) getThread(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := r.PathValue("id")
	th, ok := v.threads[id]
	if !ok {
		notFound(w, "thread", id)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (v *fakeVendor) modifyThread(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := r.PathValue("id")
	th, ok := v.threads[id]
	if !ok {
		notFound(w, "thread", id)
		return
	}
	th["metadata"] = decodeBody(r)["metadata"]
	writeJSON(w, http.StatusOK, th)
}

func (v *fakeVendor) deleteThread(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := r.PathValue("id")
	if _, ok := v.threads[id]; !ok {
		notFound(w, "thread", id)
		return
	}
	delete(v.threads, id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "object": "thread.deleted", "deleted": true})
}

func textMessage(id, threadID, role, text string) map[string]any {
	return map[string]any{
		"id":        id,
		"object":    "thread.message",
		"thread_id": threadID,
		"role":      role,
		"content": []any{
			map[string]any{"type": "text", "text": map[string]any{"value": text, "annotations": []any{}}},
		},
	}
}

func (v *fakeVendor) createMessage(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := r.PathValue("id")
	if _, ok := v.threads[id]; !ok {
		notFound(w, "thread", id)
		return
	}
	body := decodeBody(r)
	content, _ := body["content"].(string)
	m := textMessage(v.id("msg"), id, "user", content)
	v.messages[id] = append(v.messages[id], m)
	writeJSON(w, http.StatusOK, m)
}

func (v *fakeVendor) listMessages(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := r.PathValue("id")
	if _, ok := v.threads[id]; !ok {
		notFound(w, "thread", id)
		return
	}
	msgs := slices.Clone(v.messages[id])
	if r.URL.Query().Get("order") != "asc" {
		slices.Reverse(msgs)
	}
	var limit int
	fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	if msgs == nil {
		msgs = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": msgs, "has_more": false})
}

func (v *fakeVendor) createRun(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := r.PathValue("id")
	if _, ok := v.threads[id]; !ok {
		notFound(w, "thread", id)
		return
	}
	body := decodeBody(r)
	v.messages[id] = append(v.messages[id], textMessage(v.id("msg"), id, "assistant", v.reply))
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           "run_1",
		"object":       "thread.run",
		"thread_id":    id,
		"assistant_id": body["assistant_id"],
		"status":       "queued",
	})
}

func (v *fakeVendor) getRun(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := min(v.polls, len(v.runScript)-1)
	v.polls++

	run := map[string]any{"id": r.PathValue("run"), "object": "thread.run", "thread_id": r.PathValue("id")}
	for k, val := range v.runScript[i] {
		run[k] = val
	}
	writeJSON(w, http.StatusOK, run)
}

func (v *fakeVendor) submitToolOutputs(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var req openai.SubmitToolOutputsRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	v.outputs = append(v.outputs, req)
	writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("run"), "thread_id": r.PathValue("id"), "status": "queued"})
}

func (v *fakeVendor) cancelRun(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cancelled++
	writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("run"), "thread_id": r.PathValue("id"), "status": "cancelling"})
}
