package compiler

import (
	"context"
	"fmt"
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/mcp"
	"github.com/ironcurtain/ironcurtain/pkg/policy"
)

// MaxRepairRounds bounds the verify/judge/repair loop: spec §4.F calls for
// a bounded retry count (typically 3 rounds) rather than looping until
// every scenario passes, since a constitution can describe an
// unsatisfiable rule chain.
const MaxRepairRounds = 3

// PipelineConfig wires a Pipeline to its dependencies. Cache may be nil, in
// which case every stage always recomputes. Discover overrides Manager when
// set, letting callers (tests, or a future non-MCP tool source) supply a
// pre-built tool inventory instead of querying a live mcp.Manager.
type PipelineConfig struct {
	Manager          *mcp.Manager
	Discover         func() map[string][]DiscoveredTool
	Cache            *ArtifactCache
	AnnotatorClient  ChatCompleter
	CompilerClient   ChatCompleter
	JudgeClient      ChatCompleter
	AnnotatorModel   string
	CompilerModel    string
	JudgeModel       string
	Constitution     string
	ProtectedPaths   []string
	SandboxDir       string
	TrustedDomains   []string
	HandwrittenScenarios []TestScenario
	InteractionLog   *InteractionLog
}

// Pipeline runs the offline compilation pipeline end to end: discover,
// annotate, compile, generate scenarios, verify, and repair.
type Pipeline struct {
	cfg PipelineConfig
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Run executes every stage, honoring the artifact cache, and returns the
// final compiled policy, annotations, and scenario set, or an error if the
// pipeline could not converge within MaxRepairRounds.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	cached := map[string]bool{}

	discover := p.cfg.Discover
	if discover == nil {
		discover = func() map[string][]DiscoveredTool { return discoverTools(p.cfg.Manager) }
	}
	toolsByServer := discover()

	annotationsFile := ToolAnnotationsFile{GeneratedAt: time.Now().UTC(), Servers: map[string]ServerAnnotations{}}
	var allAnnotations []policy.ToolAnnotation

	for serverName, tools := range toolsByServer {
		inputHash := serverInputHash(serverName, tools, annotatorSystemPromptTemplate)

		var serverAnn ServerAnnotations
		hit, err := p.cacheGet("annotate:"+serverName, inputHash, &serverAnn)
		if err != nil {
			return nil, err
		}
		if hit {
			cached["annotate:"+serverName] = true
		} else {
			client := withLogging(p.cfg.AnnotatorClient, p.cfg.InteractionLog, "annotate:"+serverName)
			anns, err := annotateServer(ctx, client, p.cfg.AnnotatorModel, serverName, tools)
			if err != nil {
				return nil, err
			}
			serverAnn = ServerAnnotations{InputHash: inputHash, Tools: anns}
			if err := p.cachePut("annotate:"+serverName, inputHash, serverAnn); err != nil {
				return nil, err
			}
		}

		annotationsFile.Servers[serverName] = serverAnn
		allAnnotations = append(allAnnotations, serverAnn.Tools...)
	}

	annotationEntries := make([]ServerAnnotationsEntry, 0, len(annotationsFile.Servers))
	for name, sa := range annotationsFile.Servers {
		annotationEntries = append(annotationEntries, ServerAnnotationsEntry{ServerName: name, InputHash: sa.InputHash})
	}

	compileHash := compileInputHash(p.cfg.Constitution, annotationEntries, p.cfg.SandboxDir, p.cfg.ProtectedPaths, compilerSystemPromptTemplate)

	var compiled policy.CompiledPolicy
	hit, err := p.cacheGet("compile", compileHash, &compiled)
	if err != nil {
		return nil, err
	}
	if hit {
		cached["compile"] = true
	}

	session := NewSession(
		withLogging(p.cfg.CompilerClient, p.cfg.InteractionLog, "compile"),
		p.cfg.CompilerModel,
		fmt.Sprintf(compilerSystemPromptTemplate, annotationsGuidanceBlock(allAnnotations)),
	)

	if !hit {
		fresh, err := compileConstitution(ctx, withLogging(p.cfg.CompilerClient, p.cfg.InteractionLog, "compile"), p.cfg.CompilerModel, p.cfg.Constitution, allAnnotations, p.cfg.ProtectedPaths, p.cfg.SandboxDir, p.cfg.TrustedDomains)
		if err != nil {
			return nil, err
		}
		compiled = *fresh
	}

	var scenarios []TestScenario
	scenarioHash := hashStrings(compileHash, hashJSON(p.cfg.HandwrittenScenarios))
	hit, err = p.cacheGet("scenarios", scenarioHash, &scenarios)
	if err != nil {
		return nil, err
	}
	if hit {
		cached["scenarios"] = true
	} else {
		scenarios, err = generateScenarios(ctx, withLogging(p.cfg.CompilerClient, p.cfg.InteractionLog, "scenarios"), p.cfg.CompilerModel, &compiled, p.cfg.HandwrittenScenarios)
		if err != nil {
			return nil, err
		}
		if err := p.cachePut("scenarios", scenarioHash, scenarios); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Annotations: annotationsFile,
		Scenarios:   scenarios,
		StageCached: cached,
	}

	for round := 0; round < MaxRepairRounds; round++ {
		result.Rounds = round + 1

		mismatches, err := runScenarios(&compiled, allAnnotations, p.cfg.ProtectedPaths, p.cfg.SandboxDir, p.cfg.TrustedDomains, scenarios)
		if err != nil {
			return nil, err
		}
		if len(mismatches) == 0 {
			result.Passed = true
			result.Policy = compiled
			if err := p.cachePut("compile", compileHash, compiled); err != nil {
				return nil, err
			}
			return result, nil
		}

		judgeClient := withLogging(p.cfg.JudgeClient, p.cfg.InteractionLog, "judge")
		var verdicts []JudgeVerdict
		var keep []TestScenario
		for _, m := range mismatches {
			v, err := judgeMismatch(ctx, judgeClient, p.cfg.JudgeModel, m)
			if err != nil {
				return nil, err
			}
			verdicts = append(verdicts, v)
		}
		for _, sc := range scenarios {
			discarded := false
			for _, v := range verdicts {
				if v.Action == "discard" && v.Mismatch.Scenario.scenarioKey() == sc.scenarioKey() {
					discarded = true
					break
				}
			}
			if !discarded {
				keep = append(keep, sc)
			}
		}
		scenarios = keep
		result.Scenarios = scenarios
		result.Mismatches = mismatches

		hasCorrections := false
		for _, v := range verdicts {
			if v.Action == "correct" {
				hasCorrections = true
				break
			}
		}
		if !hasCorrections {
			continue
		}

		reply, err := session.Send(ctx, repairTurn(verdicts))
		if err != nil {
			return nil, err
		}
		fresh, err := parseAndValidateRules(reply, allAnnotations, p.cfg.ProtectedPaths, p.cfg.SandboxDir, p.cfg.TrustedDomains)
		if err != nil {
			return nil, err
		}
		fresh.ConstitutionHash = compiled.ConstitutionHash
		compiled = *fresh
	}

	result.Policy = compiled
	return result, ironerr.New(ironerr.ErrCodeVerifyFailed, "policy did not converge within the repair round budget").
		WithContext("rounds", MaxRepairRounds).
		WithContext("remainingMismatches", len(result.Mismatches))
}

func (p *Pipeline) cacheGet(stage, hash string, dest any) (bool, error) {
	if p.cfg.Cache == nil {
		return false, nil
	}
	hit, err := p.cfg.Cache.Get(stage, hash, dest)
	if err != nil {
		return false, ironerr.Wrap(err, ironerr.ErrCodeCacheCorrupt, "read artifact cache for stage "+stage)
	}
	return hit, nil
}

func (p *Pipeline) cachePut(stage, hash string, v any) error {
	if p.cfg.Cache == nil {
		return nil
	}
	if err := p.cfg.Cache.Put(stage, hash, v); err != nil {
		return ironerr.Wrap(err, ironerr.ErrCodeCacheCorrupt, "write artifact cache for stage "+stage)
	}
	return nil
}
