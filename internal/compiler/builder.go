/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package compiler

import "dialogical/internal/domain"

// Build concatenates segments, in order, into a Document.
func Build(source string, segments []domain.Segment) *domain.Document {
	if segments == nil {
		segments = []domain.Segment{}
	}
	return &domain.Document{Source: source, Segments: segments}
}
