// Package pipeline implements the pipeline graph: nodes wrapping processes,
// sub-pipelines, switches, iterative and custom structural nodes, joined by
// typed links between plugs.
//
// A pipeline is declared by a DefineFunc run once by New. Structural
// methods (AddProcess, AddLink, ExportParameter, ...) are only accepted
// while the definition runs or inside Edit:
//
//	p, err := pipeline.New("my.Chain", func(p *pipeline.Pipeline) error {
//	    if err := p.AddProcess("node1", process.CopyDefinition); err != nil {
//	        return err
//	    }
//	    if err := p.AddProcess("node2", process.CopyDefinition); err != nil {
//	        return err
//	    }
//	    if err := p.AddLink("node1.output->node2.input"); err != nil {
//	        return err
//	    }
//	    if err := p.ExportParameter("node1", "input", pipeline.As("input_image")); err != nil {
//	        return err
//	    }
//	    return p.ExportParameter("node2", "output", pipeline.As("output_image"))
//	})
//
// The activation solver (UpdateActivation) derives which nodes and plugs
// take part in an execution from enabled flags, switch selections, values
// and links. It runs automatically after every state change of the
// top-level pipeline unless delayed with DelayActivation.
//
// Values are shared along links: setting a plug value updates every plug
// linked to it, in both directions.
package pipeline
