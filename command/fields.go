/*
 * Copyright 2024 Axibase Corporation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package command

import "strings"

// Fields is an insertion-ordered map with case-insensitive keys. Setting an
// existing key replaces the value in place and keeps the original position.
type Fields[V any] struct {
	keys   []string
	values []V
	index  map[string]int
}

// Set stores v under key.
func (f *Fields[V]) Set(key string, v V) {
	if f.index == nil {
		f.index = make(map[string]int)
	}
	lk := strings.ToLower(key)
	if i, ok := f.index[lk]; ok {
		f.values[i] = v
		return
	}
	f.index[lk] = len(f.keys)
	f.keys = append(f.keys, key)
	f.values = append(f.values, v)
}

// Get returns the value stored under key.
func (f *Fields[V]) Get(key string) (v V, ok bool) {
	i, ok := f.index[strings.ToLower(key)]
	if !ok {
		return v, false
	}
	return f.values[i], true
}

// Len returns the number of keys.
func (f *Fields[V]) Len() int {
	return len(f.keys)
}

// Each calls fn for every key in insertion order.
func (f *Fields[V]) Each(fn func(key string, v V)) {
	for i, k := range f.keys {
		fn(k, f.values[i])
	}
}
