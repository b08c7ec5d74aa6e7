/*
 * Copyright 2020-present Open Networking Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package upgrade

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImageSlateMonotonicFlags(t *testing.T) {
	s := NewImageSlate(0, []byte{0x01}, []byte{0xAA})

	require.False(t, s.Uploaded())
	require.False(t, s.Tested())
	require.False(t, s.Confirmed())

	s.MarkTested()
	require.True(t, s.Uploaded(), "tested implies uploaded")
	require.True(t, s.Tested())
	require.False(t, s.Confirmed())

	s.MarkConfirmed()
	require.True(t, s.Confirmed())

	// Marking again must not clear anything already set.
	s.MarkUploaded()
	require.True(t, s.Uploaded())
	require.True(t, s.Tested())
	require.True(t, s.Confirmed())
}

func TestImageSlateHashEquals(t *testing.T) {
	s := NewImageSlate(0, nil, []byte{0xAA, 0xBB})

	require.True(t, s.HashEquals([]byte{0xAA, 0xBB}))
	require.False(t, s.HashEquals([]byte{0xAA}))
	require.False(t, s.HashEquals(nil))
}

func TestSortSlatesOrdersByIndexThenHash(t *testing.T) {
	slates := []*ImageSlate{
		NewImageSlate(1, nil, []byte{0x01}),
		NewImageSlate(0, nil, []byte{0x02}),
		NewImageSlate(0, nil, []byte{0x01}),
	}

	SortSlates(slates)

	require.Equal(t, uint8(0), slates[0].Index)
	require.Equal(t, []byte{0x01}, slates[0].Hash)
	require.Equal(t, uint8(0), slates[1].Index)
	require.Equal(t, []byte{0x02}, slates[1].Hash)
	require.Equal(t, uint8(1), slates[2].Index)
}

func TestPendingUploadOnlyReturnsUnuploaded(t *testing.T) {
	a := NewImageSlate(0, nil, []byte{0x01})
	b := NewImageSlate(1, nil, []byte{0x02})
	b.MarkUploaded()

	out := PendingUpload([]*ImageSlate{a, b})

	require.Len(t, out, 1)
	require.Same(t, a, out[0])
}

func TestAllUploaded(t *testing.T) {
	a := NewImageSlate(0, nil, []byte{0x01})
	b := NewImageSlate(1, nil, []byte{0x02})

	require.False(t, AllUploaded([]*ImageSlate{a, b}))

	a.MarkUploaded()
	require.False(t, AllUploaded([]*ImageSlate{a, b}))

	b.MarkUploaded()
	require.True(t, AllUploaded([]*ImageSlate{a, b}))
}

func TestFirstUntestedAndFirstUnconfirmed(t *testing.T) {
	a := NewImageSlate(0, nil, []byte{0x01})
	b := NewImageSlate(1, nil, []byte{0x02})
	a.MarkTested()
	a.MarkConfirmed()

	require.Same(t, b, FirstUntested([]*ImageSlate{a, b}))
	require.Same(t, b, FirstUnconfirmed([]*ImageSlate{a, b}))

	b.MarkTested()
	b.MarkConfirmed()
	require.Nil(t, FirstUntested([]*ImageSlate{a, b}))
	require.Nil(t, FirstUnconfirmed([]*ImageSlate{a, b}))
}

func TestFindByHash(t *testing.T) {
	a := NewImageSlate(0, nil, []byte{0x01})
	b := NewImageSlate(1, nil, []byte{0x02})

	require.Same(t, b, FindByHash([]*ImageSlate{a, b}, []byte{0x02}))
	require.Nil(t, FindByHash([]*ImageSlate{a, b}, []byte{0x03}))
}
