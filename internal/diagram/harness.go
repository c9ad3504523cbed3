package diagram

// harness is the Python entry point written next to the generated program in
// the scratch directory. It executes the program in a namespace holding only
// the drawing surface, with a non-interactive backend, and writes the active
// figure to the output path. The program's prints go to stdout; any raised
// exception lands on stderr as a full traceback with a non-zero exit, which
// the Go side turns into a structured failure.
//
// Figure state never crosses requests: each compile is its own interpreter
// process, and the harness still closes all figures before exiting.
const harness = `import sys
import traceback

import matplotlib
matplotlib.use("Agg")
import matplotlib.pyplot as plt

import schemdraw
import schemdraw.elements as elm


def main():
    program_path, out_path, dpi = sys.argv[1], sys.argv[2], int(sys.argv[3])

    with open(program_path) as f:
        program = f.read()

    exec_globals = {
        "__builtins__": __builtins__,
        "schemdraw": schemdraw,
        "elm": elm,
        "matplotlib": matplotlib,
        "plt": plt,
    }

    try:
        exec(program, exec_globals)
        plt.savefig(out_path, format="png", bbox_inches="tight", dpi=dpi)
    except Exception:
        traceback.print_exc()
        sys.exit(1)
    finally:
        plt.close("all")


if __name__ == "__main__":
    main()
`
