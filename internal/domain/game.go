package domain

import (
    "errors"

    "github.com/samber/lo"
)

// Cell represents a board cell state. X and O are the two marks.
type Cell uint8

const (
    Empty Cell = iota
    X
    O
)

// String returns "X", "O" or "" for an empty cell.
func (c Cell) String() string {
    switch c {
    case X:
        return "X"
    case O:
        return "O"
    default:
        return ""
    }
}

// Opponent returns the other mark. Empty has no opponent.
func (c Cell) Opponent() Cell {
    switch c {
    case X:
        return O
    case O:
        return X
    default:
        return Empty
    }
}

// ParseCell maps "X"/"O" (either case) to a mark.
func ParseCell(s string) (Cell, bool) {
    switch s {
    case "X", "x":
        return X, true
    case "O", "o":
        return O, true
    }
    return Empty, false
}

// Board is a fixed 3x3 board stored row-major.
type Board [9]Cell

// winLines lists every winning alignment in check order:
// rows, then columns, then the main and anti diagonals.
var winLines = [8][3]int{
    // rows
    {0, 1, 2}, {3, 4, 5}, {6, 7, 8},
    // cols
    {0, 3, 6}, {1, 4, 7}, {2, 5, 8},
    // diags
    {0, 4, 8}, {2, 4, 6},
}

// WinLines returns a copy of the winning alignments in check order.
func WinLines() [8][3]int { return winLines }

// Winner returns the mark owning the first fully marked line, or Empty.
func Winner(b Board) Cell {
    for _, ln := range winLines {
        c := b[ln[0]]
        if c != Empty && b[ln[1]] == c && b[ln[2]] == c {
            return c
        }
    }
    return Empty
}

// IsFull reports whether no cell is empty.
func IsFull(b Board) bool {
    for _, c := range b {
        if c == Empty {
            return false
        }
    }
    return true
}

// EmptyCells returns the indexes of empty cells in ascending order.
func EmptyCells(b Board) []int {
    return lo.Filter(lo.Range(len(b)), func(i int, _ int) bool {
        return b[i] == Empty
    })
}

// Outcome is the derived result of a board.
type Outcome uint8

const (
    InProgress Outcome = iota
    XWins
    OWins
    Draw
)

func (o Outcome) String() string {
    switch o {
    case XWins:
        return "x_wins"
    case OWins:
        return "o_wins"
    case Draw:
        return "draw"
    default:
        return "in_progress"
    }
}

// Evaluate derives the outcome of b. A win takes precedence over a full board.
func Evaluate(b Board) Outcome {
    switch Winner(b) {
    case X:
        return XWins
    case O:
        return OWins
    }
    if IsFull(b) {
        return Draw
    }
    return InProgress
}

// Game holds the current state of a Tic-Tac-Toe match.
type Game struct {
    Board  Board
    Turn   Cell
    Winner Cell
    Over   bool
    Moves  int
}

// Errors returned by domain operations.
var (
    ErrOutOfBounds = errors.New("out of bounds")
    ErrOccupied    = errors.New("cell occupied")
    ErrGameOver    = errors.New("game over")
)

// New returns a new game with X to move.
func New() Game {
    return Game{Turn: X}
}

// Reset clears the whole board and gives the first move back to X.
func (g *Game) Reset() {
    *g = New()
}

// Outcome returns the derived outcome of the current board.
func (g *Game) Outcome() Outcome {
    return Evaluate(g.Board)
}

// Play attempts to play the current turn at row r, column c (0..2).
func (g *Game) Play(r, c int) error {
    if r < 0 || r > 2 || c < 0 || c > 2 {
        if g.Over {
            return ErrGameOver
        }
        return ErrOutOfBounds
    }
    return g.PlayAt(r*3 + c)
}

// PlayAt attempts to play the current turn at cell idx (0..8).
func (g *Game) PlayAt(idx int) error {
    if g.Over {
        return ErrGameOver
    }
    if idx < 0 || idx >= len(g.Board) {
        return ErrOutOfBounds
    }
    if g.Board[idx] != Empty {
        return ErrOccupied
    }

    g.Board[idx] = g.Turn
    g.Moves++

    if w := Winner(g.Board); w != Empty {
        g.Winner = w
        g.Over = true
        return nil
    }
    if IsFull(g.Board) {
        g.Winner = Empty
        g.Over = true
        return nil
    }

    g.Turn = g.Turn.Opponent()
    return nil
}
