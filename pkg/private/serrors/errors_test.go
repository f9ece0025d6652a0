// Copyright 2026 NFV Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nfvworks/fortville/pkg/private/serrors"
)

func TestNew(t *testing.T) {
	err := serrors.New("dma exhausted", "ring", 3, "size", 2048)
	assert.Equal(t, "dma exhausted {ring=3; size=2048}", err.Error())

	plain := serrors.New("no context")
	assert.Equal(t, "no context", plain.Error())
}

func TestWrapIs(t *testing.T) {
	sentinel := serrors.New("handle fault")
	wrapped := serrors.Wrap("syncing ring", sentinel, "ring", 1)

	assert.ErrorIs(t, wrapped, sentinel)
	assert.Equal(t, "syncing ring {ring=1}: handle fault", wrapped.Error())
	assert.NotErrorIs(t, wrapped, serrors.New("handle fault"))
}

func TestJoin(t *testing.T) {
	assert.NoError(t, serrors.Join(nil, nil))

	base := errors.New("base")
	cause := errors.New("cause")
	err := serrors.Join(base, cause, "k", "v")
	assert.ErrorIs(t, err, base)
	assert.ErrorIs(t, err, cause)
}
