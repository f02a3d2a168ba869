package nciparam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchTable46(t *testing.T) {
	s := NewStore()

	tests := []struct {
		name string
		id   ID
		want []byte
	}{
		{"TOTAL_DURATION", TotalDuration, []byte{0xE8, 0x03}}, // 1000 LE
		{"PA_DEVICES_LIMIT", PaDevicesLimit, []byte{255}},
		{"LA_SEL_INFO", LaSelInfo, []byte{0x60}},
		{"LB_SENSB_INFO", LbSensbInfo, []byte{0x01}},
		{"LF_PROTOCOL_TYPE", LfProtocolType, []byte{0x02}},
		{"LI_A_RATS_TB1", LiARatsTb1, []byte{0x70}},
		{"LI_A_RATS_TC1", LiARatsTc1, []byte{0x02}},
		{"LF_T3T_PMM_DEFAULT", LfT3tPmm, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Get(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(TotalDuration, []byte{0x34, 0x12}))

	got, err := s.Get(TotalDuration)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x34, 0x12}, got)
}

func TestSetRejectsReadOnly(t *testing.T) {
	s := NewStore()
	err := s.Set(LfT3tMax, []byte{0x05})
	var roErr *ErrReadOnlyParam
	assert.ErrorAs(t, err, &roErr)
}

func TestSetRejectsUnknown(t *testing.T) {
	s := NewStore()
	err := s.Set(ID(0xFE), []byte{0x00})
	var unknownErr *ErrUnknownParam
	assert.ErrorAs(t, err, &unknownErr)
}

func TestSetRejectsWrongLength(t *testing.T) {
	s := NewStore()
	err := s.Set(TotalDuration, []byte{0x01})
	var lenErr *ErrInvalidLength
	assert.ErrorAs(t, err, &lenErr)
}

func TestSetAllCommitsValidEvenWhenSomeInvalid(t *testing.T) {
	s := NewStore()
	invalid := s.SetAll(map[ID][]byte{
		TotalDuration: {0x34, 0x12},
		ID(0xFE):      {0x00},
	})
	assert.Equal(t, []ID{ID(0xFE)}, invalid)

	got, err := s.Get(TotalDuration)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x34, 0x12}, got)
}

func TestGetAllReportsMissing(t *testing.T) {
	s := NewStore()
	values, missing := s.GetAll([]ID{TotalDuration, ID(0xFE)})
	assert.Equal(t, []ID{ID(0xFE)}, missing)
	assert.Equal(t, []byte{}, values[ID(0xFE)])
	assert.NotEmpty(t, values[TotalDuration])
}

func TestResetToDefaultsRestoresTable46(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(TotalDuration, []byte{0x34, 0x12}))
	s.ResetToDefaults()

	got, err := s.Get(TotalDuration)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE8, 0x03}, got)
}
