package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/ai/llm"
	"github.com/driftchat/driftchat/store"
)

// Image and video generations do not stream. The run submits a job to
// the gateway, polls until it settles, and persists a single terminal
// message. Costs are flat per job, reported by the gateway.

// runJob drives an image or video generation.
func (r *generationRun) runJob(ctx context.Context) error {
	o := r.orchestrator

	assistant, err := r.createAssistantRow(ctx, nil)
	if err != nil {
		r.fail(err)
		return err
	}

	kind := "images"
	if r.model.Modality == store.ModalityVideo {
		kind = "videos"
	}

	job := o.newJobClient(o.profile.GatewayBaseURL, r.apiKey)
	result, err := job.Wait(ctx, &llm.JobRequest{
		Model:  r.model.ModelID,
		Prompt: r.userText,
		Kind:   kind,
	})
	if err != nil {
		r.finalizeJob(assistant.ID, "", nil, err)
		return err
	}

	content := jobContent(r.model.Modality, result.URL)
	r.finalizeJob(assistant.ID, content, result.CostUsd, nil)
	return nil
}

// jobContent renders the asset reference persisted as message content.
func jobContent(modality store.Modality, url string) string {
	if modality == store.ModalityImage {
		return fmt.Sprintf("![generated image](%s)", url)
	}
	return url
}

// finalizeJob is the job-mode counterpart of finalize: terminal row,
// conversation cost, generating flag. Token counts never exist for
// jobs, only the flat gateway price.
func (r *generationRun) finalizeJob(messageID int64, content string, costUsd *float64, jobErr error) {
	if r.finalized {
		return
	}
	r.finalized = true
	o := r.orchestrator

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().Unix()
	update := &store.UpdateMessage{
		ID:        messageID,
		Content:   &content,
		UpdatedTs: &now,
	}
	if content != "" {
		if rendered, err := o.markdown.Render(content); err == nil {
			update.ContentHTML = &rendered
		}
	}
	if jobErr != nil {
		errorText := jobErr.Error()
		if errors.Is(jobErr, context.Canceled) {
			errorText = cancelledErrorText
		}
		update.Error = &errorText
	}
	if costUsd != nil {
		update.CostUsd = costUsd
	}

	if _, err := o.store.UpdateMessage(ctx, update); err != nil {
		slog.Error("terminal message persist failed", "message_id", messageID, "error", err)
	}

	generating := false
	conversationUpdate := &store.UpdateConversation{
		ID:         r.conversation.ID,
		Generating: &generating,
		UpdatedTs:  &now,
	}
	if costUsd != nil {
		conversationUpdate.AddCostUsd = costUsd
		if o.metrics != nil {
			o.metrics.CostAdded(r.model.ModelID, *costUsd)
		}
	}
	if _, err := o.store.UpdateConversation(ctx, conversationUpdate); err != nil {
		slog.Error("conversation finalize failed", "conversation_id", r.conversation.ID, "error", err)
	}
}
