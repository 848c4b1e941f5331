// Copyright 2026 Plateshare Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentry

import (
	sentrygo "github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// ReportMutationError reports a mutation that exhausted its retries with
// enough context to triage which feature and entity were affected. The error
// is always logged; it is forwarded to Sentry only when reporting is enabled.
func ReportMutationError(log *zap.SugaredLogger, feature, entityType, entityID, operation string, err error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	log.Errorw("mutation exhausted retries",
		"feature", feature,
		"entity_type", entityType,
		"entity_id", entityID,
		"operation", operation,
		"error", err,
	)

	if !enabled.Load() {
		return
	}

	sentrygo.WithScope(func(scope *sentrygo.Scope) {
		scope.SetContext("mutation", map[string]interface{}{
			"feature":     feature,
			"entity_type": entityType,
			"entity_id":   entityID,
			"operation":   operation,
		})
		scope.SetLevel(sentrygo.LevelError)
		sentrygo.CaptureException(err)
	})
}
