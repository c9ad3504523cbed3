package codegen

// systemPrompt demands structured output. The extraction chain in extract.go
// handles models that ignore it.
const systemPrompt = "You are a Python expert. Return ONLY valid JSON with a 'code' field containing Python code."

// promptTemplate is the fixed few-shot prompt. {question} and {solution} are
// substituted at request time; the solution supplies the component values the
// generated diagram must be labeled with.
const promptTemplate = `Write schemdraw code that draws the circuit for the question below. Label every component with the values from the solution.

Example 1 — voltage source with two series resistors:
import schemdraw
import schemdraw.elements as elm
d = schemdraw.Drawing()
d += elm.SourceV().up().label('12V')
d += elm.Resistor().right().label('4Ω')
d += elm.Resistor().down().label('8Ω')
d += elm.Line().left()
d.draw()

Example 2 — parallel resistors:
import schemdraw
import schemdraw.elements as elm
d = schemdraw.Drawing()
d += elm.SourceV().up().label('9V')
d += elm.Line().right()
d.push()
d += elm.Resistor().down().label('6Ω')
d.pop()
d += elm.Line().right()
d += elm.Resistor().down().label('3Ω')
d += elm.Line().left().tox(0)
d.draw()

Example 3 — RC circuit:
import schemdraw
import schemdraw.elements as elm
d = schemdraw.Drawing()
d += elm.SourceV().up().label('5V')
d += elm.Resistor().right().label('1kΩ')
d += elm.Capacitor().down().label('10µF')
d += elm.Line().left()
d.draw()

Example 4 — RL circuit:
import schemdraw
import schemdraw.elements as elm
d = schemdraw.Drawing()
d += elm.SourceSin().up().label('10V')
d += elm.Resistor().right().label('100Ω')
d += elm.Inductor().down().label('50mH')
d += elm.Line().left()
d.draw()

Example 5 — current source with load:
import schemdraw
import schemdraw.elements as elm
d = schemdraw.Drawing()
d += elm.SourceI().up().label('2A')
d += elm.Line().right()
d += elm.Resistor().down().label('10Ω')
d += elm.Line().left()
d.draw()

Example 6 — bridge with labeled nodes:
import schemdraw
import schemdraw.elements as elm
d = schemdraw.Drawing()
d += elm.SourceV().up().label('24V')
d += elm.Resistor().right().label('R1 2Ω')
d += elm.Resistor().down().label('R2 4Ω')
d += elm.Resistor().left().label('R3 6Ω')
d.draw()

Question: {question}

Solution with component values: {solution}

Return a JSON object: {"code": "<the complete schemdraw program>"}`
