package types

// Verb is a script command verb. The ScriptCompiler tokenizes raw script
// lines into a Verb plus an optional target/value.
type Verb string

// Navigation verbs.
const (
	VerbNavigate Verb = "navigate"
)

// State-mutation verbs. Most of these are pre-applied to the Job/Task at
// compile time and never reach the driver as runtime commands; the ones
// that require a live driver (cookie/header/UA) stay in the script.
const (
	VerbSetHeader             Verb = "setheader"
	VerbAddHeader             Verb = "addheader"
	VerbSetCookie             Verb = "setcookie"
	VerbSetUA                 Verb = "setua"
	VerbSetDNS                Verb = "setdns"
	VerbSetDNSName            Verb = "setdnsname"
	VerbBlockDomains          Verb = "blockdomains"
	VerbBlockDomainsExcept    Verb = "blockdomainsexcept"
	VerbBlock                 Verb = "block"
	VerbOverrideHost          Verb = "overridehost"
	VerbSetViewportSize       Verb = "setviewportsize"
	VerbSetBrowserSize        Verb = "setbrowsersize"
	VerbSetDPR                Verb = "setdpr"
	VerbSetTimeout            Verb = "settimeout"
	VerbSetActivityTimeout    Verb = "setactivitytimeout"
	VerbSetMinimumStepSeconds Verb = "setminimumstepseconds"
	VerbSetABM                Verb = "setabm"
	VerbLogData               Verb = "logdata"
	VerbCombineSteps          Verb = "combinesteps"
	VerbSetEventName          Verb = "seteventname"
	VerbWaitFor               Verb = "waitfor"
	VerbWaitInterval          Verb = "waitinterval"
)

// In-page execution verbs. Element-targeted verbs are rewritten by the
// ScriptCompiler into `exec` of a selector expression.
const (
	VerbExec           Verb = "exec"
	VerbClick          Verb = "click"
	VerbSetValue       Verb = "setvalue"
	VerbSubmitForm     Verb = "submitform"
	VerbSetInnerText   Verb = "setinnertext"
	VerbSetInnerHTML   Verb = "setinnerhtml"
	VerbSelectValue    Verb = "selectvalue"
	VerbSendClick      Verb = "sendclick"
)

// Timing verbs.
const (
	VerbSleep Verb = "sleep"
)

// elementTargetedVerbs rewrite into VerbExec of a selector expression.
var elementTargetedVerbs = map[Verb]bool{
	VerbClick:        true,
	VerbSetValue:     true,
	VerbSubmitForm:   true,
	VerbSetInnerText: true,
	VerbSetInnerHTML: true,
	VerbSelectValue:  true,
	VerbSendClick:    true,
}

// IsElementTargeted reports whether v is rewritten into an exec() selector
// expression by the ScriptCompiler.
func (v Verb) IsElementTargeted() bool {
	return elementTargetedVerbs[v]
}

// stateMutationVerbs are pre-applicable to the Job/Task at compile time and
// are not emitted as runtime commands when pre-application succeeds.
var stateMutationVerbs = map[Verb]bool{
	VerbSetDNS:                true,
	VerbSetDNSName:            true,
	VerbBlockDomains:          true,
	VerbBlockDomainsExcept:    true,
	VerbBlock:                 true,
	VerbOverrideHost:          true,
	VerbSetViewportSize:       true,
	VerbSetBrowserSize:        true,
	VerbSetDPR:                true,
	VerbSetTimeout:            true,
	VerbSetActivityTimeout:    true,
	VerbSetMinimumStepSeconds: true,
	VerbSetABM:                true,
	VerbLogData:               true,
	VerbCombineSteps:          true,
}

// IsPreApplicable reports whether v mutates job/task configuration at
// compile time instead of being dispatched to a live driver.
func (v Verb) IsPreApplicable() bool {
	return stateMutationVerbs[v]
}

// Command is a single typed script instruction. Record commands commit a
// measurement step; non-record commands mutate driver state without
// capture. The `andwait` suffix on any verb, stripped at tokenization time,
// forces Record=true.
type Command struct {
	Verb   Verb
	Target string
	Value  string
	Record bool
}
