package infer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/vision-batch/pkg/types"
)

type stubClient struct {
	reply     string
	err       error
	gotPrompt string
	calls     int
}

func (s *stubClient) Query(_ context.Context, prompt, _ string) (string, error) {
	s.calls++
	s.gotPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestEngine(reply string) (*Engine, *stubClient) {
	c := &stubClient{reply: reply}
	return New(c, zap.NewNop().Sugar()), c
}

func TestInferCaption(t *testing.T) {
	e, _ := newTestEngine("  A cat sits on a red chair.\n")

	got, err := e.Infer(context.Background(), "img", types.TaskCaption, "")
	require.NoError(t, err)
	assert.Equal(t, "A cat sits on a red chair.", got)
}

func TestInferTagsStripsFences(t *testing.T) {
	e, _ := newTestEngine("```json\n[\"Sunset\", \"beach\", \"beach\", \"\"]\n```")

	got, err := e.Infer(context.Background(), "img", types.TaskTags, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sunset", "beach"}, got)
}

func TestInferDetect(t *testing.T) {
	e, _ := newTestEngine(`{"labels":["cat","dog"],"bboxes":[[1,2,3,4],[5,6,7,8]]}`)

	got, err := e.Infer(context.Background(), "img", types.TaskDetect, "")
	require.NoError(t, err)

	d, ok := got.(*types.Detections)
	require.True(t, ok)
	assert.Equal(t, []string{"cat", "dog"}, d.Labels)
	require.Len(t, d.Bboxes, 2)
	assert.Equal(t, [4]float64{1, 2, 3, 4}, d.Bboxes[0])
	assert.Empty(t, d.QuadBoxes)
}

func TestInferDetectLengthMismatch(t *testing.T) {
	e, _ := newTestEngine(`{"labels":["cat","dog"],"bboxes":[[1,2,3,4]]}`)

	_, err := e.Infer(context.Background(), "img", types.TaskDetect, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length mismatch")
}

func TestInferDetectMalformed(t *testing.T) {
	e, _ := newTestEngine("sorry, I cannot help with that")

	_, err := e.Infer(context.Background(), "img", types.TaskDetect, "")
	require.Error(t, err)
}

func TestInferOCRRegions(t *testing.T) {
	e, _ := newTestEngine(`{"labels":["STOP"],"quad_boxes":[[1,2,3,2,3,4,1,4]]}`)

	got, err := e.Infer(context.Background(), "img", types.TaskOCRRegions, "")
	require.NoError(t, err)

	d, ok := got.(*types.Detections)
	require.True(t, ok)
	assert.Equal(t, []string{"STOP"}, d.Labels)
	require.Len(t, d.QuadBoxes, 1)
	assert.Equal(t, [8]float64{1, 2, 3, 2, 3, 4, 1, 4}, d.QuadBoxes[0])
	assert.Empty(t, d.Bboxes)
}

func TestInferOCRRegionsBadQuadLength(t *testing.T) {
	e, _ := newTestEngine(`{"labels":["STOP"],"quad_boxes":[[1,2,3,4]]}`)

	_, err := e.Infer(context.Background(), "img", types.TaskOCRRegions, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "8 coordinates")
}

func TestInferGroundInterpolatesPhrase(t *testing.T) {
	e, c := newTestEngine(`{"labels":["red car"],"bboxes":[[0,0,10,10]]}`)

	_, err := e.Infer(context.Background(), "img", types.TaskGround, "red car")
	require.NoError(t, err)
	assert.Contains(t, c.gotPrompt, `"red car"`)
}

func TestInferGroundRequiresText(t *testing.T) {
	e, c := newTestEngine("")

	_, err := e.Infer(context.Background(), "img", types.TaskGround, "   ")
	require.Error(t, err)
	assert.Zero(t, c.calls)
}

func TestInferClientError(t *testing.T) {
	boom := errors.New("backend down")
	c := &stubClient{err: boom}
	e := New(c, zap.NewNop().Sugar())

	_, err := e.Infer(context.Background(), "img", types.TaskCaption, "")
	require.ErrorIs(t, err, boom)
}

func TestSanitizeModelJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced block",
			in:   "```json\n{\"labels\":[]}\n```",
			want: `{"labels":[]}`,
		},
		{
			name: "prose around object",
			in:   `Here you go: {"labels":["a"]} hope that helps`,
			want: `{"labels":["a"]}`,
		},
		{
			name: "trailing commas",
			in:   `{"labels":["a",],"bboxes":[[1,2,3,4],],}`,
			want: `{"labels":["a"],"bboxes":[[1,2,3,4]]}`,
		},
		{
			name: "line comments",
			in:   "{\"labels\":[],\n// nothing found\n\"bboxes\":[]}",
			want: "{\"labels\":[],\n\n\"bboxes\":[]}",
		},
		{
			name: "bare array",
			in:   "answer: [\"a\", \"b\"]",
			want: `["a", "b"]`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sanitizeModelJSON(tc.in))
		})
	}
}

func TestParseStringArrayMalformed(t *testing.T) {
	_, err := parseStringArray("{not an array}")
	require.Error(t, err)
}
