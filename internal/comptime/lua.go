/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package comptime

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"
)

// luaHookInterval is the number of VM instructions between budget checks.
// It is kept small so that a loop doubling a string is caught within a few
// doublings of crossing MaxStringBytes.
const luaHookInterval = 10

// LuaEngine runs Lua 5.2 source. Each call gets a new interpreter with only the
// base (without dofile, loadfile, pcall, xpcall and collectgarbage), string,
// table and math libraries, plus:
//
//	emit(s)     emit s as dialogue text
//	print(...)  emit the arguments joined by tabs
//	log(s)      write s to the build log
//
// Everything a script can observe is a function of its source: pairs and next
// visit keys in sorted order, math.random is seeded from the source, and
// tostring names tables and functions by the order they were first seen.
// string.rep, table.concat and string.gsub respect MaxStringBytes.
type LuaEngine struct{}

func (LuaEngine) Run(source string, env *Env) error {
	l := lua.NewState()
	sb := newLuaSandbox(env, source)
	sb.open(l)
	lua.SetDebugHook(l, sb.hook, lua.MaskCount, luaHookInterval)

	if err := lua.LoadBuffer(l, source, "=comptime", "t"); err != nil {
		return faultf("%v", err)
	}
	err := l.ProtectedCall(0, 0, 0)
	if halt := env.Halted(); halt != nil {
		return halt
	}
	if err != nil {
		return faultf("%v", err)
	}
	// A deadline may pass inside the last builtin call with no hook after it.
	return env.Charge(0)
}

type luaSandbox struct {
	env *Env
	rng *rand.Rand
	ids map[string]int
	// keep holds every value given an id so its address is never reused.
	keep []any
}

func newLuaSandbox(env *Env, source string) *luaSandbox {
	sum := sha256.Sum256([]byte(source))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	return &luaSandbox{
		env: env,
		rng: rand.New(rand.NewSource(seed)),
		ids: make(map[string]int),
	}
}

func (s *luaSandbox) open(l *lua.State) {
	lua.Require(l, "_G", lua.BaseOpen, true)
	l.Pop(1)
	for _, name := range []string{"dofile", "loadfile", "pcall", "xpcall", "collectgarbage"} {
		l.PushNil()
		l.SetGlobal(name)
	}
	libs := []struct {
		name string
		open lua.Function
	}{
		{"string", lua.StringOpen},
		{"table", lua.TableOpen},
		{"math", lua.MathOpen},
	}
	for _, lib := range libs {
		lua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}

	l.Register("emit", s.emit)
	l.Register("print", s.print)
	l.Register("log", s.log)
	l.Register("tostring", s.tostring)
	l.Register("pairs", s.pairs)
	l.Register("next", s.next)
	setField(l, "string", "rep", s.rep)
	setField(l, "table", "concat", s.concat)
	setField(l, "math", "random", s.random)
	setField(l, "math", "randomseed", s.randomseed)

	l.Global("string")
	l.Field(-1, "gsub")
	l.PushGoClosure(s.gsub, 1)
	l.SetField(-2, "gsub")
	l.Pop(1)
}

func setField(l *lua.State, table, name string, f lua.Function) {
	l.Global(table)
	l.PushGoFunction(f)
	l.SetField(-2, name)
	l.Pop(1)
}

// raise stops the script with err.
func (s *luaSandbox) raise(l *lua.State, err error) {
	lua.Errorf(l, "%s", s.env.stop(err).Error())
}

func (s *luaSandbox) charge(l *lua.State, n int) {
	if err := s.env.Charge(n); err != nil {
		lua.Errorf(l, "%s", err.Error())
	}
}

func (s *luaSandbox) checkString(l *lua.State, n int) {
	if err := s.env.CheckString(n); err != nil {
		lua.Errorf(l, "%s", err.Error())
	}
}

// hook charges the budget and looks for oversized strings in the running
// function's registers, which is where the result of ".." lands.
func (s *luaSandbox) hook(l *lua.State, _ lua.Debug) {
	s.charge(l, luaHookInterval)
	for i, top := 1, l.Top(); i <= top; i++ {
		if l.TypeOf(i) == lua.TypeString {
			s.checkString(l, l.RawLength(i))
		}
	}
}

func (s *luaSandbox) emit(l *lua.State) int {
	if err := s.env.Emit(lua.CheckString(l, 1)); err != nil {
		lua.Errorf(l, "%s", err.Error())
	}
	return 0
}

func (s *luaSandbox) print(l *lua.State) int {
	n := l.Top()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, s.toString(l, i))
	}
	if err := s.env.Emit(strings.Join(parts, "\t")); err != nil {
		lua.Errorf(l, "%s", err.Error())
	}
	return 0
}

func (s *luaSandbox) log(l *lua.State) int {
	s.env.Log(lua.CheckString(l, 1))
	return 0
}

func (s *luaSandbox) tostring(l *lua.State) int {
	lua.CheckAny(l, 1)
	l.PushString(s.toString(l, 1))
	return 1
}

func (s *luaSandbox) toString(l *lua.State, i int) string {
	i = l.AbsIndex(i)
	if lua.CallMeta(l, i, "__tostring") {
		str, ok := l.ToString(-1)
		l.Pop(1)
		if !ok {
			lua.Errorf(l, "'__tostring' must return a string")
		}
		return str
	}
	switch l.TypeOf(i) {
	case lua.TypeTable, lua.TypeFunction, lua.TypeUserData, lua.TypeLightUserData, lua.TypeThread:
		return fmt.Sprintf("%s: 0x%08x", lua.TypeNameOf(l, i), s.identity(l, i))
	}
	str, _ := lua.ToStringMeta(l, i)
	l.Pop(1)
	return str
}

// identity numbers reference values in the order they are first seen.
func (s *luaSandbox) identity(l *lua.State, i int) int {
	v := l.ToValue(i)
	k := fmt.Sprintf("%T:%p", v, v)
	if id, ok := s.ids[k]; ok {
		return id
	}
	s.keep = append(s.keep, v)
	id := len(s.keep)
	s.ids[k] = id
	return id
}

// luaKey orders table keys: numbers, then strings, then booleans, then
// reference values by identity.
type luaKey struct {
	rank int
	num  float64
	str  string
	pos  int
}

func (a luaKey) less(b luaKey) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if a.num != b.num {
		return a.num < b.num
	}
	return a.str < b.str
}

func (s *luaSandbox) describe(l *lua.State, i int) luaKey {
	switch l.TypeOf(i) {
	case lua.TypeNumber:
		n, _ := l.ToNumber(i)
		return luaKey{rank: 0, num: n}
	case lua.TypeString:
		str, _ := l.ToString(i)
		return luaKey{rank: 1, str: str}
	case lua.TypeBoolean:
		if l.ToBoolean(i) {
			return luaKey{rank: 2, num: 1}
		}
		return luaKey{rank: 2}
	}
	return luaKey{rank: 3, num: float64(s.identity(l, i))}
}

// sortedKeys pushes an array of the keys of the table at idx in key order and
// returns its length.
func (s *luaSandbox) sortedKeys(l *lua.State, idx int) int {
	idx = l.AbsIndex(idx)
	l.NewTable()
	tmp := l.Top()
	var keys []luaKey
	l.PushNil()
	for l.Next(idx) {
		l.Pop(1)
		k := s.describe(l, -1)
		k.pos = len(keys) + 1
		l.PushValue(-1)
		l.RawSetInt(tmp, k.pos)
		keys = append(keys, k)
	}
	s.charge(l, len(keys))
	sort.Slice(keys, func(a, b int) bool { return keys[a].less(keys[b]) })
	l.CreateTable(len(keys), 0)
	for i, k := range keys {
		l.RawGetInt(tmp, k.pos)
		l.RawSetInt(-2, i+1)
	}
	l.Remove(tmp)
	return len(keys)
}

func (s *luaSandbox) pairs(l *lua.State) int {
	if lua.MetaField(l, 1, "__pairs") {
		l.PushValue(1)
		l.Call(1, 3)
		return 3
	}
	lua.CheckType(l, 1, lua.TypeTable)
	s.sortedKeys(l, 1)
	pos := 0
	l.PushGoClosure(func(l *lua.State) int {
		keys := lua.UpValueIndex(1)
		for {
			pos++
			l.RawGetInt(keys, pos)
			if l.IsNil(-1) {
				return 1
			}
			l.PushValue(-1)
			l.RawGet(1)
			if !l.IsNil(-1) {
				return 2
			}
			l.Pop(2)
		}
	}, 1)
	l.PushValue(1)
	l.PushNil()
	return 3
}

func (s *luaSandbox) next(l *lua.State) int {
	lua.CheckType(l, 1, lua.TypeTable)
	l.SetTop(2)
	n := s.sortedKeys(l, 1)
	pos := 0
	if !l.IsNil(2) {
		want := s.describe(l, 2)
		for i := 1; i <= n && pos == 0; i++ {
			l.RawGetInt(3, i)
			if k := s.describe(l, -1); !k.less(want) && !want.less(k) {
				pos = i
			}
			l.Pop(1)
		}
		if pos == 0 {
			lua.Errorf(l, "invalid key to 'next'")
		}
	}
	for pos++; pos <= n; pos++ {
		l.RawGetInt(3, pos)
		l.PushValue(-1)
		l.RawGet(1)
		if !l.IsNil(-1) {
			return 2
		}
		l.Pop(2)
	}
	l.PushNil()
	return 1
}

func (s *luaSandbox) rep(l *lua.State) int {
	str := lua.CheckString(l, 1)
	n := lua.CheckInteger(l, 2)
	sep := lua.OptString(l, 3, "")
	if n <= 0 {
		l.PushString("")
		return 1
	}
	size := float64(len(str))*float64(n) + float64(len(sep))*float64(n-1)
	if size > float64(int(^uint(0)>>1)) {
		s.raise(l, fmt.Errorf("%w: string.rep result too large", ErrBudget))
	}
	s.checkString(l, int(size))
	s.charge(l, 1+int(size)/1024)
	if sep == "" {
		l.PushString(strings.Repeat(str, n))
		return 1
	}
	var b strings.Builder
	b.Grow(int(size))
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(str)
	}
	l.PushString(b.String())
	return 1
}

func (s *luaSandbox) concat(l *lua.State) int {
	lua.CheckType(l, 1, lua.TypeTable)
	sep := lua.OptString(l, 2, "")
	first := lua.OptInteger(l, 3, 1)
	last := lua.OptInteger(l, 4, lua.LengthEx(l, 1))
	parts := make([]string, 0, min(max(last-first+1, 0), 1024))
	size := 0
	for i := first; i <= last; i++ {
		l.RawGetInt(1, i)
		str, ok := l.ToString(-1)
		l.Pop(1)
		if !ok {
			lua.Errorf(l, "invalid value (at index %d) in table for 'concat'", i)
		}
		size += len(str)
		if i > first {
			size += len(sep)
		}
		s.checkString(l, size)
		parts = append(parts, str)
	}
	s.charge(l, 1+size/1024)
	l.PushString(strings.Join(parts, sep))
	return 1
}

// gsub runs the library gsub and rejects an oversized result.
func (s *luaSandbox) gsub(l *lua.State) int {
	n := l.Top()
	l.PushValue(lua.UpValueIndex(1))
	l.Insert(1)
	l.Call(n, 2)
	size := l.RawLength(1)
	s.checkString(l, size)
	s.charge(l, size/1024)
	return 2
}

func (s *luaSandbox) random(l *lua.State) int {
	switch l.Top() {
	case 0:
		l.PushNumber(s.rng.Float64())
	case 1:
		hi := lua.CheckInteger(l, 1)
		if hi < 1 {
			lua.ArgumentError(l, 1, "interval is empty")
		}
		l.PushInteger(1 + int(s.rng.Int63n(int64(hi))))
	case 2:
		lo, hi := lua.CheckInteger(l, 1), lua.CheckInteger(l, 2)
		if lo > hi {
			lua.ArgumentError(l, 2, "interval is empty")
		}
		l.PushInteger(lo + int(s.rng.Int63n(int64(hi-lo)+1)))
	default:
		lua.Errorf(l, "wrong number of arguments")
	}
	return 1
}

func (s *luaSandbox) randomseed(l *lua.State) int {
	s.rng.Seed(int64(lua.CheckNumber(l, 1)))
	return 0
}
