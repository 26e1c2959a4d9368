package driver

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-component-ld/adapter"
	"github.com/wippyai/wasm-component-ld/argv"
	"github.com/wippyai/wasm-component-ld/component"
	"github.com/wippyai/wasm-component-ld/errors"
	"github.com/wippyai/wasm-component-ld/lld"
	"github.com/wippyai/wasm-component-ld/wasm"
	"github.com/wippyai/wasm-component-ld/witmeta"
)

// Run executes one link. The external linker produces a core module in
// a sibling workspace, which is assembled into a component at the
// planned destination. With componentization skipped the linker writes
// the destination itself and no transformation happens.
func Run(ctx context.Context, cfg Config) error {
	plan := cfg.Plan

	program, err := lld.Locate(plan.WasmLdPath)
	if err != nil {
		return err
	}
	inv := &lld.Invoker{Program: program, Spawn: cfg.Spawn, Verbose: plan.Verbose}

	if plan.SkipComponent || plan.Shared {
		Logger().Debug("componentization skipped",
			zap.Bool("shared", plan.Shared),
			zap.String("output", plan.Output))
		return inv.Run(ctx, plan.Linker, plan.Output)
	}

	ws, err := lld.NewWorkspace(plan.Output)
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := inv.Run(ctx, plan.Linker, ws.Path); err != nil {
		return err
	}
	linked, err := os.ReadFile(ws.Path)
	if err != nil {
		return errors.IO(errors.PhaseInspect, ws.Path, err)
	}

	out, err := assemble(ctx, plan, linked)
	if err != nil {
		return err
	}
	return writeArtifact(plan.Output, out)
}

// assemble transforms linked core-module bytes into an encoded
// component per the plan's component options.
func assemble(ctx context.Context, plan *argv.Plan, linked []byte) ([]byte, error) {
	core, err := wasm.Inspect(linked)
	if err != nil {
		return nil, errors.New(errors.PhaseInspect, errors.KindInvalidModule).
			Cause(err).
			Detail("linker output is not a valid core module").
			Build()
	}
	if plan.Validate {
		if err := wasm.DeepValidate(ctx, linked); err != nil {
			return nil, errors.New(errors.PhaseInspect, errors.KindInvalidModule).
				Cause(err).
				Detail("linked module failed validation").
				Build()
		}
	}

	res, err := adapter.Resolve(core, adapter.Options{
		Overrides:  plan.Adapters,
		NoBuiltins: plan.NoAdapters,
		Proxy:      plan.Proxy,
	})
	if err != nil {
		return nil, err
	}
	if plan.Validate {
		for _, ad := range res.Adapters {
			if err := wasm.DeepValidate(ctx, ad.Bytes); err != nil {
				return nil, errors.New(errors.PhaseInspect, errors.KindMalformedAdapter).
					Element(ad.Namespace).
					Cause(err).
					Detail("adapter module failed validation").
					Build()
			}
		}
	}

	meta, err := witmeta.Resolve(core, res.Adapters, witmeta.Options{
		WorldFiles:          plan.WorldFiles,
		StringEncoding:      plan.StringEncoding,
		AdaptedNamespaces:   res.Namespaces,
		AllowUnknownImports: plan.AllowUnknown,
	})
	if err != nil {
		return nil, err
	}

	// Carry the resolved world inside the main module so downstream
	// tooling can recover it from the embedded copy alone.
	if embedded, ok := witmeta.Embed(core, meta.WorldText); ok {
		core, err = wasm.Inspect(embedded)
		if err != nil {
			return nil, errors.EncodeInternal("module invalid after world embedding: %v", err)
		}
	}

	out, err := component.Encode(component.Assembly{
		Main:           core,
		Adapters:       res.Adapters,
		Imports:        meta.Imports,
		Exports:        meta.Exports,
		StringEncoding: meta.StringEncoding,
		WorldText:      meta.WorldText,
		SkipValidation: !plan.Validate,
	})
	if err != nil {
		return nil, err
	}

	Logger().Debug("component assembled",
		zap.Int("module_bytes", len(linked)),
		zap.Int("component_bytes", len(out)),
		zap.Int("adapters", len(res.Adapters)),
		zap.Bool("synthesized_world", meta.Synthesized))
	return out, nil
}
