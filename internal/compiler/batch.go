/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package compiler

import (
	"context"
	"runtime"

	"dialogical/internal/domain"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one file in a batch. Exactly one of Doc and Err is set.
type Result struct {
	Path string
	Doc  *domain.Document
	Err  error
}

// CompileBatch compiles files in parallel. A failing file does not cancel its
// siblings; results are returned in input order.
func CompileBatch(ctx context.Context, paths []string, opts Options) []Result {
	results := make([]Result, len(paths))
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, p := range paths {
		g.Go(func() error {
			doc, err := CompileFile(ctx, p, opts)
			results[i] = Result{Path: p, Doc: doc, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// WorstKind returns the most severe kind among failed results, or 0.
func WorstKind(results []Result) Kind {
	var worst Kind
	for _, r := range results {
		if k := KindOf(r.Err); k > worst {
			worst = k
		}
	}
	return worst
}
