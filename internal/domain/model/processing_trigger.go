package model

import (
	"encoding/json"
	"fmt"
	"strconv"

	"telegram-bot-platform/internal/domain"
)

// MessageProcessingJobName is the queue name the Worker consumes.
const MessageProcessingJobName = "message-processing"

// MessageProcessingTriggerPayload is deliberately minimal: the Worker reloads
// everything else from storage when it picks the job up.
type MessageProcessingTriggerPayload struct {
	UserMessageID int64 `json:"userMessageId"`
}

// ProcessingSingletonKey is the queue dedup key for a user message. At most one
// created or active trigger job may carry it at a time.
func ProcessingSingletonKey(userMessageID int64) string {
	return MessageProcessingJobName + ":" + strconv.FormatInt(userMessageID, 10)
}

func DecodeTriggerPayload(raw []byte) (MessageProcessingTriggerPayload, error) {
	var p MessageProcessingTriggerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: decode trigger payload: %v", domain.ErrInvalidArgument, err)
	}
	if p.UserMessageID <= 0 {
		return p, fmt.Errorf("%w: trigger payload without userMessageId", domain.ErrInvalidArgument)
	}
	return p, nil
}
