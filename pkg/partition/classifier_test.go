package partition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/partition"
)

func TestClassifyQueueHintWins(t *testing.T) {
	t.Parallel()

	classifier := partition.NewClassifier()

	// Name is full of CPU vocabulary, but the explicit hint overrides.
	action := &models.WorkflowAction{
		ActionType: models.ActionTypeCallWebhook,
		Name:       "compute transform aggregate",
		QueueHint:  models.QueueHintIO,
	}
	assert.Equal(t, partition.IOBound, classifier.Classify(action))

	action.QueueHint = models.QueueHintCPU
	assert.Equal(t, partition.CPUBound, classifier.Classify(action))
}

func TestClassifyKeywordScoring(t *testing.T) {
	t.Parallel()

	classifier := partition.NewClassifier()

	tests := []struct {
		name   string
		action *models.WorkflowAction
		want   partition.Classification
	}{
		{
			name:   "io vocabulary",
			action: &models.WorkflowAction{ActionType: models.ActionTypeSendEmail, Name: "Fetch lead and send email notification"},
			want:   partition.IOBound,
		},
		{
			name:   "cpu vocabulary",
			action: &models.WorkflowAction{ActionType: "custom", Name: "Compute and aggregate deal score"},
			want:   partition.CPUBound,
		},
		{
			name:   "no vocabulary hits is mixed",
			action: &models.WorkflowAction{ActionType: "custom", Name: "misc step"},
			want:   partition.Mixed,
		},
		{
			name: "tie is mixed",
			action: &models.WorkflowAction{
				ActionType: "custom",
				Name:       "fetch and transform", // one I/O hit, one CPU hit
			},
			want: partition.Mixed,
		},
		{
			name: "payload action participates in scoring",
			action: &models.WorkflowAction{
				ActionType: "custom",
				Name:       "step",
				Payload:    map[string]any{"action": "upload report"},
			},
			want: partition.IOBound,
		},
		{
			name:   "case insensitive",
			action: &models.WorkflowAction{ActionType: "custom", Name: "DOWNLOAD Attachments"},
			want:   partition.IOBound,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, testCase.want, classifier.Classify(testCase.action))
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	t.Parallel()

	classifier := partition.NewClassifier()
	action := &models.WorkflowAction{ActionType: models.ActionTypeUpdateField, Name: "update deal stage"}

	first := classifier.Classify(action)
	for range 50 {
		assert.Equal(t, first, classifier.Classify(action))
	}
}
