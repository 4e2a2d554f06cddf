package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	t.Setenv("GLM_API_KEY", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return &out, cmd.Execute()
}

func TestDecomposeCommand(t *testing.T) {
	out, err := runCmd(t, "decompose", "考研上岸")
	require.NoError(t, err)

	var got struct {
		Source string `json:"source"`
		Reason struct {
			Kind string `json:"kind"`
		} `json:"reason"`
		Plan struct {
			Title      string `json:"title"`
			Milestones []struct {
				Tasks []struct {
					Title string `json:"title"`
				} `json:"tasks"`
			} `json:"milestones"`
		} `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "fallback", got.Source)
	assert.Equal(t, "configuration_absent", got.Reason.Kind)
	assert.Equal(t, "考研上岸", got.Plan.Title)
	require.Len(t, got.Plan.Milestones, 4)
	assert.Len(t, got.Plan.Milestones[0].Tasks, 3)
}

func TestDecomposeCommand_FullWeek(t *testing.T) {
	out, err := runCmd(t, "--tasks-per-milestone", "7", "decompose", "跑完半马")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "跑完半马")

	_, err = runCmd(t, "--tasks-per-milestone", "5", "decompose", "跑完半马")
	assert.Error(t, err)
}

func TestSplitCommand(t *testing.T) {
	out, err := runCmd(t, "split", "准备", "面试")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "拆解任务目标")

	_, err = runCmd(t, "split")
	assert.Error(t, err)
}
