// Package script compiles a Job's raw script text into an ordered
// Command list plus the job/task configuration mutations its
// state-mutation verbs apply at compile time.
package script

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/wptagent/agent/types"
)

// CompiledScript is the output of Compile: the runtime command list plus
// every mutation a pre-applicable verb produced. RunController copies these
// fields onto each Task it creates from the job.
type CompiledScript struct {
	Commands           []types.Command
	ScriptStepCount    int
	BlockList          []string
	HostRules          []string
	DNSOverride        []string
	CombineSteps       bool
	MinimumStepSeconds int
	ABM                string
	LogData            bool
}

// Compile tokenizes job.ScriptText, rewrites element-targeted verbs into
// exec() calls, pre-applies state-mutation verbs directly onto job, and
// returns the remaining runtime command list. A navigate always records a
// step, with or without the andwait suffix. If job.ScriptText is empty,
// a single navigate(job.URL) command is synthesized.
func Compile(job *types.Job) (*CompiledScript, error) {
	result := &CompiledScript{}

	var commands []types.Command
	for _, line := range splitLines(job.ScriptText) {
		cmd, ok := parseLine(line)
		if !ok {
			continue
		}

		cmd = stripAndWait(cmd)
		if cmd.Verb == types.VerbNavigate {
			cmd.Record = true
		}

		if cmd.Verb.IsElementTargeted() {
			cmd = rewriteElementTargeted(cmd)
		}

		if cmd.Verb.IsPreApplicable() {
			applyPreApplicable(job, result, cmd)
			continue
		}

		commands = append(commands, cmd)
	}

	if len(commands) == 0 {
		commands = []types.Command{{Verb: types.VerbNavigate, Target: job.URL, Record: true}}
	}

	commands = trimTrailingNonRecord(commands)
	result.Commands = commands
	result.ScriptStepCount = max(countRecordCommands(commands), 1)

	return result, nil
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// parseLine tokenizes a single script line by tab: verb\ttarget?\tvalue?.
func parseLine(line string) (types.Command, bool) {
	fields := strings.Split(line, "\t")
	verb := strings.ToLower(strings.TrimSpace(fields[0]))
	if verb == "" {
		return types.Command{}, false
	}

	cmd := types.Command{Verb: types.Verb(verb)}
	if len(fields) > 1 {
		cmd.Target = strings.TrimSpace(fields[1])
	}
	if len(fields) > 2 {
		cmd.Value = strings.TrimSpace(fields[2])
	}
	return cmd, true
}

// stripAndWait strips a trailing "andwait" suffix from the verb and forces
// Record=true.
func stripAndWait(cmd types.Command) types.Command {
	const suffix = "andwait"
	verb := string(cmd.Verb)
	if strings.HasSuffix(verb, suffix) && verb != suffix {
		cmd.Verb = types.Verb(strings.TrimSuffix(verb, suffix))
		cmd.Record = true
	}
	return cmd
}

// rewriteElementTargeted rewrites click/setvalue/submitform/setinnertext/
// setinnerhtml/selectvalue/sendclick into an exec() of a selector
// expression. submitform additionally forces Record=true.
func rewriteElementTargeted(cmd types.Command) types.Command {
	selector := jsSelector(cmd.Target)

	var expr string
	switch cmd.Verb {
	case types.VerbClick:
		expr = fmt.Sprintf("%s.click()", selector)
	case types.VerbSendClick:
		expr = fmt.Sprintf("%s.dispatchEvent(new MouseEvent('click', {bubbles: true}))", selector)
	case types.VerbSetValue:
		expr = fmt.Sprintf("%s.value = %s", selector, jsString(cmd.Value))
	case types.VerbSetInnerText:
		expr = fmt.Sprintf("%s.innerText = %s", selector, jsString(cmd.Value))
	case types.VerbSetInnerHTML:
		expr = fmt.Sprintf("%s.innerHTML = %s", selector, jsString(cmd.Value))
	case types.VerbSelectValue:
		expr = fmt.Sprintf("%s.value = %s", selector, jsString(cmd.Value))
	case types.VerbSubmitForm:
		expr = fmt.Sprintf("%s.submit()", selector)
		cmd.Record = true
	default:
		expr = fmt.Sprintf("%s", selector)
	}

	return types.Command{Verb: types.VerbExec, Value: expr, Record: cmd.Record}
}

func jsSelector(target string) string {
	return fmt.Sprintf("document.querySelector(%s)", jsString(target))
}

func jsString(s string) string {
	return strconv.Quote(s)
}

// applyPreApplicable applies a state-mutation verb directly to the job or
// to the accumulating CompiledScript. setdnsname resolves the target to a
// single IPv4 at compile time; on success it is treated as setdns, on
// failure it is dropped (best-effort, matching a driver with no live DNS
// override still falling through to system resolution).
func applyPreApplicable(job *types.Job, result *CompiledScript, cmd types.Command) {
	switch cmd.Verb {
	case types.VerbSetDNS:
		result.DNSOverride = append(result.DNSOverride, cmd.Target+"="+cmd.Value)
	case types.VerbSetDNSName:
		ips, err := net.LookupIP(cmd.Target)
		if err != nil || len(ips) == 0 {
			return
		}
		for _, ip := range ips {
			if v4 := ip.To4(); v4 != nil {
				result.DNSOverride = append(result.DNSOverride, cmd.Target+"="+v4.String())
				return
			}
		}
	case types.VerbBlockDomains:
		result.BlockList = append(result.BlockList, strings.Split(cmd.Target, ",")...)
	case types.VerbBlockDomainsExcept:
		result.BlockList = append(result.BlockList, "except:"+cmd.Target)
	case types.VerbBlock:
		result.BlockList = append(result.BlockList, cmd.Target)
	case types.VerbOverrideHost:
		result.HostRules = append(result.HostRules, cmd.Target+"="+cmd.Value)
	case types.VerbSetViewportSize:
		w, h, ok := parseWxH(cmd.Target)
		if ok {
			job.ViewportWidth, job.ViewportHeight = w, h
		}
	case types.VerbSetBrowserSize:
		w, h, ok := parseWxH(cmd.Target)
		if ok {
			job.ViewportWidth, job.ViewportHeight = w, h
		}
	case types.VerbSetDPR:
		if dpr, err := strconv.ParseFloat(cmd.Target, 64); err == nil {
			job.DPR = dpr
		}
	case types.VerbSetTimeout:
		if secs, err := strconv.Atoi(cmd.Target); err == nil {
			job.TimeoutSeconds = secs
		}
	case types.VerbSetActivityTimeout:
		if ms, err := strconv.Atoi(cmd.Target); err == nil {
			job.ActivityTimeoutMs = ms
		}
	case types.VerbSetMinimumStepSeconds:
		if secs, err := strconv.Atoi(cmd.Target); err == nil {
			result.MinimumStepSeconds = secs
		}
	case types.VerbSetABM:
		result.ABM = cmd.Target
	case types.VerbLogData:
		result.LogData = cmd.Target == "1" || strings.EqualFold(cmd.Target, "true")
	case types.VerbCombineSteps:
		result.CombineSteps = cmd.Target == "1" || strings.EqualFold(cmd.Target, "true") || cmd.Target == ""
	}
}

func parseWxH(s string) (w, h int, ok bool) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil {
		return 0, 0, false
	}
	return w, h, true
}

// trimTrailingNonRecord drops trailing commands that do not commit a
// measurement step; a script ending in non-recording cleanup commands
// produces no useful final step.
func trimTrailingNonRecord(commands []types.Command) []types.Command {
	end := len(commands)
	for end > 0 && !commands[end-1].Record {
		end--
	}
	return commands[:end]
}

func countRecordCommands(commands []types.Command) int {
	n := 0
	for _, c := range commands {
		if c.Record {
			n++
		}
	}
	return n
}
